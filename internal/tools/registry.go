// Package tools describes the CLI AI tools the engine can invoke: the
// command line for each {tool, mode, model} combination, whether the
// prompt travels via stdin or argv, how native resume flags are
// spelled, and where the tool keeps its own session artifacts.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// ResumeSupport describes a tool's native resume mechanism.
type ResumeSupport struct {
	Supported    bool   `toml:"supported"`
	ResumeFlag   string `toml:"resume_flag"`   // e.g. "--resume", takes a session id
	ContinueFlag string `toml:"continue_flag"` // e.g. "--continue", resumes latest
}

// Definition is one tool's invocation contract.
type Definition struct {
	Name           string        `toml:"name"`
	Command        string        `toml:"command"`
	BaseArgs       []string      `toml:"base_args"`
	AnalysisArgs   []string      `toml:"analysis_args"`
	WriteArgs      []string      `toml:"write_args"`
	AutoArgs       []string      `toml:"auto_args"`
	ModelFlag      string        `toml:"model_flag"`
	IncludeDirFlag string        `toml:"include_dir_flag"`
	PromptViaStdin bool          `toml:"prompt_via_stdin"`
	NativeResume   ResumeSupport `toml:"native_resume"`

	// SessionDir is the root of the tool's on-disk session storage,
	// with "~" expanding to the user home. Empty means the tool exposes
	// no discoverable sessions.
	SessionDir string `toml:"session_dir"`
	// FatalMarkers, when set, replaces the global fatal-marker list for
	// this tool's stderr inspection.
	FatalMarkers []string `toml:"fatal_markers"`
}

// modeArgs returns the permission arguments for a mode.
func (d Definition) modeArgs(mode ccw.Mode) []string {
	switch mode {
	case ccw.ModeWrite:
		return d.WriteArgs
	case ccw.ModeAuto:
		return d.AutoArgs
	default:
		return d.AnalysisArgs
	}
}

// SessionRoot expands the session dir for the current user.
// Returns "" when the tool has no session storage.
func (d Definition) SessionRoot() string {
	if d.SessionDir == "" {
		return ""
	}
	if strings.HasPrefix(d.SessionDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, strings.TrimPrefix(d.SessionDir, "~"))
	}
	return d.SessionDir
}

// Registry holds the known tool definitions.
type Registry struct {
	defs map[string]Definition
}

// Builtin returns a registry populated with the built-in tools.
func Builtin() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, d := range builtinDefinitions() {
		r.defs[d.Name] = d
	}
	return r
}

func builtinDefinitions() []Definition {
	return []Definition{
		{
			Name:           "claude",
			Command:        "claude",
			BaseArgs:       []string{"-p"},
			AnalysisArgs:   []string{"--permission-mode", "plan"},
			WriteArgs:      []string{"--permission-mode", "acceptEdits"},
			AutoArgs:       []string{"--dangerously-skip-permissions"},
			ModelFlag:      "--model",
			IncludeDirFlag: "--add-dir",
			NativeResume: ResumeSupport{
				Supported:    true,
				ResumeFlag:   "--resume",
				ContinueFlag: "--continue",
			},
			SessionDir: "~/.claude/projects",
		},
		{
			Name:         "codex",
			Command:      "codex",
			BaseArgs:     []string{"exec"},
			AnalysisArgs: []string{"--sandbox", "read-only"},
			WriteArgs:    []string{"--sandbox", "workspace-write"},
			AutoArgs:     []string{"--full-auto"},
			ModelFlag:    "-m",
		},
		{
			Name:           "gemini",
			Command:        "gemini",
			BaseArgs:       []string{"-p"},
			AutoArgs:       []string{"--yolo"},
			ModelFlag:      "-m",
			IncludeDirFlag: "--include-directories",
			PromptViaStdin: true,
		},
		{
			Name:           "qwen",
			Command:        "qwen",
			BaseArgs:       []string{"-p"},
			AutoArgs:       []string{"--yolo"},
			ModelFlag:      "-m",
			PromptViaStdin: true,
		},
	}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(d Definition) {
	r.defs[d.Name] = d
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered tool names, unsorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	return names
}

// SupportsNativeResume reports whether a tool can continue its own
// sessions.
func (r *Registry) SupportsNativeResume(name string) bool {
	d, ok := r.defs[name]
	return ok && d.NativeResume.Supported
}

// configFile is the shape of ~/.ccw/tools.toml.
type configFile struct {
	Tools []Definition `toml:"tools"`
}

// LoadConfig overlays tool definitions from a TOML file. Tools sharing
// a name with a builtin replace it entirely. A missing file is not an
// error.
func (r *Registry) LoadConfig(path string) error {
	var cfg configFile
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load tool config %s: %w", path, err)
	}
	for _, d := range cfg.Tools {
		if d.Name == "" {
			return fmt.Errorf("load tool config %s: tool with no name", path)
		}
		r.defs[d.Name] = d
	}
	return nil
}

// DefaultConfigPath returns ~/.ccw/tools.toml, or "" if the home
// directory cannot be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ccw", "tools.toml")
}
