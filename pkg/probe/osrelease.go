package probe

import (
	"strings"

	"github.com/seedctl/seedctl/pkg/engine"
)

// familyByID maps os-release identifiers to OS families. Derivatives not
// listed here usually resolve through ID_LIKE.
var familyByID = map[string]engine.OSFamily{
	"debian":              engine.OSFamilyDebian,
	"ubuntu":              engine.OSFamilyDebian,
	"raspbian":            engine.OSFamilyDebian,
	"linuxmint":           engine.OSFamilyDebian,
	"rhel":                engine.OSFamilyRHEL,
	"centos":              engine.OSFamilyRHEL,
	"fedora":              engine.OSFamilyRHEL,
	"rocky":               engine.OSFamilyRHEL,
	"almalinux":           engine.OSFamilyRHEL,
	"amzn":                engine.OSFamilyRHEL,
	"arch":                engine.OSFamilyArch,
	"manjaro":             engine.OSFamilyArch,
	"opensuse":            engine.OSFamilySuse,
	"opensuse-leap":       engine.OSFamilySuse,
	"opensuse-tumbleweed": engine.OSFamilySuse,
	"sles":                engine.OSFamilySuse,
	"suse":                engine.OSFamilySuse,
	"alpine":              engine.OSFamilyAlpine,
}

// ParseOSRelease derives the OS family from os-release content. The ID
// field is consulted first, then each ID_LIKE token in order. Unknown
// identifiers map to OSFamilyUnknown rather than failing; callers fall
// back to capability probing.
func ParseOSRelease(content string) engine.OSFamily {
	var id string
	var idLike []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ID="):
			id = unquote(strings.TrimPrefix(line, "ID="))
		case strings.HasPrefix(line, "ID_LIKE="):
			idLike = strings.Fields(unquote(strings.TrimPrefix(line, "ID_LIKE=")))
		}
	}

	if family, ok := familyByID[strings.ToLower(id)]; ok {
		return family
	}
	for _, like := range idLike {
		if family, ok := familyByID[strings.ToLower(like)]; ok {
			return family
		}
	}
	return engine.OSFamilyUnknown
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}
