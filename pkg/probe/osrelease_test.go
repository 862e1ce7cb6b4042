package probe

import (
	"testing"

	"github.com/seedctl/seedctl/pkg/engine"
)

func TestParseOSRelease(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    engine.OSFamily
	}{
		{
			name:    "debian",
			content: "PRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\nID=debian\n",
			want:    engine.OSFamilyDebian,
		},
		{
			name:    "ubuntu quoted",
			content: "ID=\"ubuntu\"\nID_LIKE=debian\n",
			want:    engine.OSFamilyDebian,
		},
		{
			name:    "rocky via id",
			content: "ID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n",
			want:    engine.OSFamilyRHEL,
		},
		{
			name:    "derivative resolves through id_like",
			content: "ID=zorin\nID_LIKE=\"ubuntu debian\"\n",
			want:    engine.OSFamilyDebian,
		},
		{
			name:    "id_like first token unknown",
			content: "ID=weird\nID_LIKE=\"mystery arch\"\n",
			want:    engine.OSFamilyArch,
		},
		{
			name:    "opensuse tumbleweed",
			content: "ID=opensuse-tumbleweed\nID_LIKE=\"opensuse suse\"\n",
			want:    engine.OSFamilySuse,
		},
		{
			name:    "alpine",
			content: "ID=alpine\n",
			want:    engine.OSFamilyAlpine,
		},
		{
			name:    "case insensitive",
			content: "ID=Debian\n",
			want:    engine.OSFamilyDebian,
		},
		{
			name:    "unknown",
			content: "ID=plan9\n",
			want:    engine.OSFamilyUnknown,
		},
		{
			name:    "empty",
			content: "",
			want:    engine.OSFamilyUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseOSRelease(tt.content); got != tt.want {
				t.Errorf("ParseOSRelease() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDescribeTools(t *testing.T) {
	facts := &engine.EnvironmentFacts{
		Tools: map[engine.ToolTag]bool{
			engine.ToolJq:      true,
			engine.ToolApt:     true,
			engine.ToolOpenSSL: false,
		},
	}

	got := DescribeTools(facts)
	want := "has-jq, pkg:apt"
	if got != want {
		t.Errorf("DescribeTools() = %q, want %q", got, want)
	}

	if got := DescribeTools(&engine.EnvironmentFacts{Tools: map[engine.ToolTag]bool{}}); got != "none" {
		t.Errorf("DescribeTools(empty) = %q, want none", got)
	}
}
