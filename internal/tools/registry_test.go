package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltin_KnownTools(t *testing.T) {
	r := Builtin()
	for _, name := range []string{"claude", "codex", "gemini", "qwen"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("builtin %s missing", name)
		}
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("unknown tool resolved")
	}
}

func TestBuiltin_NativeResumeSupport(t *testing.T) {
	r := Builtin()
	if !r.SupportsNativeResume("claude") {
		t.Error("claude should support native resume")
	}
	for _, name := range []string{"codex", "gemini", "qwen", "unknown"} {
		if r.SupportsNativeResume(name) {
			t.Errorf("%s should not support native resume", name)
		}
	}
}

func TestRegister_ReplacesDefinition(t *testing.T) {
	r := Builtin()
	r.Register(Definition{Name: "claude", Command: "claude-custom"})
	d, _ := r.Get("claude")
	if d.Command != "claude-custom" {
		t.Errorf("command = %s, want claude-custom", d.Command)
	}
	if d.NativeResume.Supported {
		t.Error("replacement is whole-definition, not a merge")
	}
}

func TestLoadConfig_OverlaysTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.toml")
	cfg := `
[[tools]]
name = "claude"
command = "/opt/claude/bin/claude"
base_args = ["-p"]
fatal_markers = ["QUOTA_EXHAUSTED"]

[[tools]]
name = "aider"
command = "aider"
prompt_via_stdin = true
session_dir = "~/.aider/sessions"

[tools.native_resume]
supported = false
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	r := Builtin()
	if err := r.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	claude, _ := r.Get("claude")
	if claude.Command != "/opt/claude/bin/claude" {
		t.Errorf("claude command = %s", claude.Command)
	}
	if len(claude.FatalMarkers) != 1 || claude.FatalMarkers[0] != "QUOTA_EXHAUSTED" {
		t.Errorf("claude fatal markers = %v", claude.FatalMarkers)
	}
	// Replacement, not merge: the overlay omitted native_resume.
	if claude.NativeResume.Supported {
		t.Error("overlay should have dropped claude's native resume")
	}

	aider, ok := r.Get("aider")
	if !ok {
		t.Fatal("aider not registered")
	}
	if !aider.PromptViaStdin {
		t.Error("aider prompt_via_stdin lost")
	}
	// Builtins not named in the overlay survive untouched.
	if _, ok := r.Get("codex"); !ok {
		t.Error("codex lost after overlay")
	}
}

func TestLoadConfig_MissingFileIsFine(t *testing.T) {
	r := Builtin()
	if err := r.LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Errorf("missing config file should be ignored: %v", err)
	}
}

func TestLoadConfig_NamelessToolRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.toml")
	if err := os.WriteFile(path, []byte("[[tools]]\ncommand = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Builtin().LoadConfig(path); err == nil {
		t.Error("expected error for tool with no name")
	}
}

func TestSessionRoot_TildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	d := Definition{SessionDir: "~/.claude/projects"}
	want := filepath.Join(home, ".claude/projects")
	if got := d.SessionRoot(); got != want {
		t.Errorf("SessionRoot = %q, want %q", got, want)
	}
	if (Definition{}).SessionRoot() != "" {
		t.Error("empty session dir should give empty root")
	}
}
