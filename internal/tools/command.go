package tools

import (
	"fmt"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// NativeResumeConfig asks for the tool's own session continuation.
// IsLatest resumes the most recent session; otherwise SessionID names
// the session to continue.
type NativeResumeConfig struct {
	Enabled   bool
	SessionID string
	IsLatest  bool
}

// InvocationRequest carries everything needed to build a command line.
type InvocationRequest struct {
	Prompt      string
	Mode        ccw.Mode
	Model       string
	WorkingDir  string
	IncludeDirs []string
	Native      *NativeResumeConfig
}

// Invocation is a ready-to-spawn command line. Stdin is non-empty when
// the prompt travels via stdin instead of argv.
type Invocation struct {
	Command string
	Args    []string
	Dir     string
	Stdin   string
}

// BuildInvocation translates an engine-level request into the tool's
// concrete command line, including native resume flags when requested.
func (d Definition) BuildInvocation(req InvocationRequest) (Invocation, error) {
	inv := Invocation{Command: d.Command, Dir: req.WorkingDir}
	inv.Args = append(inv.Args, d.BaseArgs...)
	inv.Args = append(inv.Args, d.modeArgs(req.Mode)...)

	if req.Model != "" {
		if d.ModelFlag == "" {
			return Invocation{}, fmt.Errorf("tool %s does not accept a model", d.Name)
		}
		inv.Args = append(inv.Args, d.ModelFlag, req.Model)
	}

	for _, dir := range req.IncludeDirs {
		if d.IncludeDirFlag == "" {
			return Invocation{}, fmt.Errorf("tool %s does not accept include dirs", d.Name)
		}
		inv.Args = append(inv.Args, d.IncludeDirFlag, dir)
	}

	if req.Native != nil && req.Native.Enabled {
		if !d.NativeResume.Supported {
			return Invocation{}, fmt.Errorf("tool %s does not support native resume", d.Name)
		}
		switch {
		case req.Native.IsLatest:
			if d.NativeResume.ContinueFlag == "" {
				return Invocation{}, fmt.Errorf("tool %s cannot resume latest session", d.Name)
			}
			inv.Args = append(inv.Args, d.NativeResume.ContinueFlag)
		case req.Native.SessionID != "":
			inv.Args = append(inv.Args, d.NativeResume.ResumeFlag, req.Native.SessionID)
		default:
			return Invocation{}, fmt.Errorf("native resume for %s needs a session id or latest", d.Name)
		}
	}

	if d.PromptViaStdin {
		inv.Stdin = req.Prompt
	} else {
		inv.Args = append(inv.Args, req.Prompt)
	}
	return inv, nil
}
