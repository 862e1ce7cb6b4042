package system

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// saltAlphabet matches the daemon's own salt character set.
const saltAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ./"

const saltLength = 8

// SettingsCredentialStore rewrites the rpc-password field of the daemon
// settings file, preserving every other setting.
//
// The hashing policy is fixed: a salted SHA-1 digest in the daemon's
// native "{<hex digest><salt>" format, computed in-process. It never
// varies with host capability, so two hosts converging the same secret
// always persist the same scheme.
type SettingsCredentialStore struct {
	path    string
	control ServiceController
	log     zerolog.Logger
}

// NewSettingsCredentialStore creates a credential store over the daemon
// settings file.
func NewSettingsCredentialStore(path string, control ServiceController, log zerolog.Logger) *SettingsCredentialStore {
	return &SettingsCredentialStore{
		path:    path,
		control: control,
		log:     log.With().Str("component", "credential").Logger(),
	}
}

// SetPassword hashes the plaintext and rewrites the credential field.
// The write is refused while the daemon is running: a running daemon
// flushes its in-memory settings at shutdown and would discard the edit.
func (s *SettingsCredentialStore) SetPassword(ctx context.Context, plaintext string) error {
	if s.control != nil && s.control.IsActive(ctx) {
		return fmt.Errorf("refusing to rewrite %s while the daemon is running", s.path)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("settings file %s is not valid JSON: %w", s.path, err)
	}

	hashed, err := HashPassword(plaintext)
	if err != nil {
		return err
	}
	settings["rpc-password"] = hashed
	settings["rpc-authentication-required"] = true

	out, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := writeFileAtomic(s.path, append(out, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	s.log.Info().Str("path", s.path).Msg("rewrote RPC credential")
	return nil
}

// HashPassword computes the daemon's salted SHA-1 credential encoding:
// a literal '{', the hex digest of plaintext+salt, then the salt.
func HashPassword(plaintext string) (string, error) {
	salt, err := randomString(saltLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	digest := sha1.Sum([]byte(plaintext + salt))
	return fmt.Sprintf("{%x%s", digest, salt), nil
}

// GeneratePassword returns a random plaintext credential of n characters.
func GeneratePassword(n int) (string, error) {
	return randomString(n)
}

func randomString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = saltAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// writeFileAtomic writes via a temp file and rename so a crash never
// leaves a half-written settings file.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".seedctl-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
