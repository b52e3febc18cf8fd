package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
[player]
swf_version = 6
frame_rate = 12.5

[limits]
max_actions = 500
max_execution_ms = 250

[gc]
threshold = 1000

[storage]
path = "so.db"

[text]
legacy_codepage = "shift_jis"

[log]
verbosity = 3
`
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Player.SWFVersion != 6 {
		t.Errorf("swf_version = %d, want 6", c.Player.SWFVersion)
	}
	if c.Player.FrameRate != 12.5 {
		t.Errorf("frame_rate = %v, want 12.5", c.Player.FrameRate)
	}
	if c.Limits.MaxActions != 500 {
		t.Errorf("max_actions = %d, want 500", c.Limits.MaxActions)
	}
	if c.MaxExecution() != 250*time.Millisecond {
		t.Errorf("MaxExecution = %v, want 250ms", c.MaxExecution())
	}
	if c.GC.Threshold != 1000 {
		t.Errorf("gc threshold = %d, want 1000", c.GC.Threshold)
	}
	if c.Text.LegacyCodepage != "shift_jis" {
		t.Errorf("legacy_codepage = %q", c.Text.LegacyCodepage)
	}
	if !filepath.IsAbs(c.Storage.Path) || filepath.Base(c.Storage.Path) != "so.db" {
		t.Errorf("storage path = %q, want absolute path to so.db", c.Storage.Path)
	}
	// Unset values get defaults.
	if c.Player.MaxCallDepth != 256 {
		t.Errorf("max_call_depth = %d, want default 256", c.Player.MaxCallDepth)
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.Player.SWFVersion != 10 || c.Limits.MaxActions != 10000 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.MaxExecution() != 15*time.Second {
		t.Errorf("MaxExecution = %v, want 15s", c.MaxExecution())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[player\n", ""},
		{"version", "[player]\nswf_version = 99\n", "swf_version"},
		{"codepage", "[text]\nlegacy_codepage = \"koi8\"\n", "legacy_codepage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[player]\nswf_version = 8\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Player.SWFVersion != 8 {
		t.Errorf("swf_version = %d, want 8", c.Player.SWFVersion)
	}
}
