// Package config loads and validates the installer configuration: the
// desired daemon state plus the domain parameters (mirrors, build
// recipe, tuning values, filesystem paths) that the action catalog and
// system collaborators consume. Configuration is YAML over defaults;
// every load is validated before use.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/seedctl/seedctl/pkg/engine"
	"github.com/seedctl/seedctl/pkg/system"
)

// Config is the full installer configuration.
type Config struct {
	Daemon  DaemonConfig      `yaml:"daemon" validate:"required"`
	Desired DesiredConfig     `yaml:"desired" validate:"required"`
	Build   BuildConfig       `yaml:"build" validate:"required"`
	Paths   PathsConfig       `yaml:"paths" validate:"required"`
	Tuning  map[string]string `yaml:"tuning"`

	// Settings seeds the daemon's runtime settings file on first
	// initialization. Keys already present on the host are never touched.
	Settings map[string]any `yaml:"settings"`
}

// DaemonConfig identifies the managed daemon on the host.
type DaemonConfig struct {
	Binary      string `yaml:"binary" validate:"required"`
	Process     string `yaml:"process" validate:"required"`
	Service     string `yaml:"service" validate:"required"`
	Description string `yaml:"description"`
	Account     string `yaml:"account" validate:"required"`
	AccountHome string `yaml:"account_home" validate:"required"`
	Settings    string `yaml:"settings_path" validate:"required"`
	Args        string `yaml:"args"`
}

// DesiredConfig is the target state of a convergence run.
type DesiredConfig struct {
	Version    string           `yaml:"version" validate:"required"`
	Running    bool             `yaml:"running"`
	Credential CredentialConfig `yaml:"credential"`
}

// CredentialConfig selects the RPC credential policy.
type CredentialConfig struct {
	Mode   string `yaml:"mode" validate:"oneof=unchanged generate-random set"`
	Secret string `yaml:"secret" validate:"required_if=Mode set"`
	Length int    `yaml:"length" validate:"gte=0"`
}

// BuildConfig describes how the daemon is fetched and built from source.
type BuildConfig struct {
	// Mirrors are tried in order; {version} expands to the desired
	// version.
	Mirrors []string `yaml:"mirrors" validate:"required,min=1,dive,required"`

	WorkDir     string `yaml:"work_dir" validate:"required"`
	InstallPath string `yaml:"install_path" validate:"required"`

	// MinArtifactBytes overrides the corrupt-download threshold when
	// positive.
	MinArtifactBytes int64 `yaml:"min_artifact_bytes" validate:"gte=0"`

	// Steps is the build recipe run inside the extracted source tree;
	// {srcdir} expands to the source directory.
	Steps []BuildStepConfig `yaml:"steps" validate:"required,min=1,dive"`

	// Tools lists the build tool requirements per OS family.
	Tools map[string][]ToolConfig `yaml:"tools" validate:"required"`
}

// BuildStepConfig is one command of the build recipe.
type BuildStepConfig struct {
	Cmd  string   `yaml:"cmd" validate:"required"`
	Args []string `yaml:"args"`
}

// ToolConfig names a required host tool and the package providing it.
type ToolConfig struct {
	Tag     string `yaml:"tag" validate:"required"`
	Binary  string `yaml:"binary" validate:"required"`
	Package string `yaml:"package" validate:"required"`
}

// PathsConfig locates the installer's own state on the host.
type PathsConfig struct {
	StateDir     string `yaml:"state_dir" validate:"required"`
	LockFile     string `yaml:"lock_file" validate:"required"`
	Database     string `yaml:"database" validate:"required"`
	Marker       string `yaml:"marker" validate:"required"`
	SysctlDropIn string `yaml:"sysctl_drop_in" validate:"required"`
	BackupDir    string `yaml:"backup_dir" validate:"required"`
}

// Default returns the configuration for a stock transmission-daemon
// deployment. Every field can be overridden from the YAML file.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Binary:      "transmission-daemon",
			Process:     "transmission-daemon",
			Service:     "transmission-daemon",
			Description: "Transmission BitTorrent Daemon",
			Account:     "transmission",
			AccountHome: "/var/lib/transmission",
			Settings:    "/var/lib/transmission/.config/transmission-daemon/settings.json",
			Args:        "--foreground --config-dir /var/lib/transmission/.config/transmission-daemon",
		},
		Desired: DesiredConfig{
			Version: "latest",
			Running: true,
			Credential: CredentialConfig{
				Mode: string(engine.CredentialUnchanged),
			},
		},
		Build: BuildConfig{
			Mirrors: []string{
				"https://github.com/transmission/transmission/releases/download/{version}/transmission-{version}.tar.xz",
				"https://cache.transmissionbt.com/transmission-{version}.tar.xz",
			},
			WorkDir:     "/var/tmp/seedctl/build",
			InstallPath: "/usr/local/bin/transmission-daemon",
			Steps: []BuildStepConfig{
				{Cmd: "cmake", Args: []string{"-S", "{srcdir}", "-B", "{srcdir}/build", "-DCMAKE_BUILD_TYPE=Release"}},
				{Cmd: "cmake", Args: []string{"--build", "{srcdir}/build"}},
				{Cmd: "cmake", Args: []string{"--install", "{srcdir}/build"}},
			},
			Tools: map[string][]ToolConfig{
				"debian": {
					{Tag: string(engine.ToolBuildChain), Binary: "make", Package: "build-essential"},
					{Tag: string(engine.ToolJq), Binary: "jq", Package: "jq"},
					{Tag: string(engine.ToolOpenSSL), Binary: "openssl", Package: "openssl"},
				},
				"rhel": {
					{Tag: string(engine.ToolBuildChain), Binary: "make", Package: "make"},
					{Tag: string(engine.ToolJq), Binary: "jq", Package: "jq"},
					{Tag: string(engine.ToolOpenSSL), Binary: "openssl", Package: "openssl"},
				},
				"arch": {
					{Tag: string(engine.ToolBuildChain), Binary: "make", Package: "base-devel"},
					{Tag: string(engine.ToolJq), Binary: "jq", Package: "jq"},
					{Tag: string(engine.ToolOpenSSL), Binary: "openssl", Package: "openssl"},
				},
				"suse": {
					{Tag: string(engine.ToolBuildChain), Binary: "make", Package: "make"},
					{Tag: string(engine.ToolJq), Binary: "jq", Package: "jq"},
					{Tag: string(engine.ToolOpenSSL), Binary: "openssl", Package: "openssl"},
				},
				"alpine": {
					{Tag: string(engine.ToolBuildChain), Binary: "make", Package: "build-base"},
					{Tag: string(engine.ToolJq), Binary: "jq", Package: "jq"},
					{Tag: string(engine.ToolOpenSSL), Binary: "openssl", Package: "openssl"},
				},
			},
		},
		Paths: PathsConfig{
			StateDir:     "/var/lib/seedctl",
			LockFile:     "/var/lib/seedctl/run.lock",
			Database:     "/var/lib/seedctl/history.db",
			Marker:       "/var/lib/seedctl/install.json",
			SysctlDropIn: "/etc/sysctl.d/99-seedctl.conf",
			BackupDir:    "/var/lib/seedctl/backups",
		},
		Tuning: map[string]string{
			"net.core.rmem_max":               "4194304",
			"net.core.wmem_max":               "1048576",
			"net.ipv4.tcp_fastopen":           "3",
			"net.core.default_qdisc":          "fq",
			"net.ipv4.tcp_congestion_control": "bbr",
		},
		Settings: map[string]any{
			"rpc-enabled":                 true,
			"rpc-port":                    9091,
			"rpc-bind-address":            "0.0.0.0",
			"rpc-whitelist-enabled":       false,
			"rpc-authentication-required": false,
			"download-dir":                "/var/lib/transmission/downloads",
			"incomplete-dir-enabled":      false,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path and
// validated. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for family := range c.Build.Tools {
		switch engine.OSFamily(family) {
		case engine.OSFamilyDebian, engine.OSFamilyRHEL, engine.OSFamilyArch,
			engine.OSFamilySuse, engine.OSFamilyAlpine:
		default:
			return fmt.Errorf("invalid configuration: unknown OS family %q in build.tools", family)
		}
	}
	return nil
}

// DesiredState converts the desired section into the engine's form.
func (c *Config) DesiredState() engine.DesiredState {
	return engine.DesiredState{
		Version: c.Desired.Version,
		Running: c.Desired.Running,
		Credential: engine.CredentialPolicy{
			Mode:   engine.CredentialMode(c.Desired.Credential.Mode),
			Secret: c.Desired.Credential.Secret,
		},
	}
}

// BuildToolsFor returns the tool requirements for the given OS family,
// falling back to the debian set for unknown families so capability
// probing still has something to install against.
func (c *Config) BuildToolsFor(family engine.OSFamily) []system.Tool {
	entries, ok := c.Build.Tools[string(family)]
	if !ok {
		entries = c.Build.Tools[string(engine.OSFamilyDebian)]
	}

	tools := make([]system.Tool, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, system.Tool{
			Tag:     engine.ToolTag(e.Tag),
			Binary:  e.Binary,
			Package: e.Package,
		})
	}
	return tools
}

// Hash fingerprints the convergence-relevant configuration for the
// install marker. Key order is fixed so the hash is stable.
func (c *Config) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "version=%s\n", c.Desired.Version)
	fmt.Fprintf(h, "running=%t\n", c.Desired.Running)
	fmt.Fprintf(h, "credential=%s\n", c.Desired.Credential.Mode)
	for _, m := range c.Build.Mirrors {
		fmt.Fprintf(h, "mirror=%s\n", m)
	}

	keys := make([]string, 0, len(c.Tuning))
	for k := range c.Tuning {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "tuning=%s:%s\n", k, c.Tuning[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}
