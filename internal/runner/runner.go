// Package runner sequences a single CLI tool execution: resolve the
// resume strategy, build the final prompt, run the process, assemble
// the new turn, persist it, and link the tool's native session.
package runner

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccw-dev/ccw/internal/ccw"
	"github.com/ccw-dev/ccw/internal/discovery"
	"github.com/ccw-dev/ccw/internal/executor"
	"github.com/ccw-dev/ccw/internal/prompt"
	"github.com/ccw-dev/ccw/internal/resume"
	"github.com/ccw-dev/ccw/internal/store"
	"github.com/ccw-dev/ccw/internal/tools"
)

// Params is the caller-facing request for one execution.
type Params struct {
	Tool        string
	Prompt      string
	Mode        ccw.Mode
	Model       string
	CD          string
	IncludeDirs []string
	Timeout     time.Duration

	// Resume accepts "" (new), "true" (latest), a single conversation
	// id, or a comma-separated id list (merge).
	Resume string
	// ID is a caller-supplied conversation id.
	ID string
	// NoNative forces prompt concatenation even when the tool could
	// resume natively.
	NoNative bool

	Category          ccw.Category
	ParentExecutionID string
	Format            prompt.Format
	CacheOutput       bool
	OnOutput          executor.OutputFunc
}

// Output is what every execution returns to the caller. Tool-side
// failures surface here as Success=false with a recorded turn, never as
// an error.
type Output struct {
	Success      bool
	ExecutionID  string
	Execution    ccw.ConversationTurn
	Conversation *ccw.ConversationRecord
	Stdout       string
	Stderr       string
}

// Runner wires the engine components together for one project tree.
type Runner struct {
	Factory  *store.Factory
	Registry *tools.Registry
	Executor *executor.Executor
	Tracker  *discovery.Tracker
	// Logger receives non-fatal engine events (persistence failures,
	// discovery misses). Nil disables logging.
	Logger *log.Logger
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

// ExecuteCliTool performs one execution end to end. Only setup errors
// (unknown tool, bad working directory, malformed resume request) are
// returned; process outcomes are captured in the Output.
func (r *Runner) ExecuteCliTool(ctx context.Context, p Params) (*Output, error) {
	def, ok := r.Registry.Get(p.Tool)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", p.Tool)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if p.Mode == "" {
		p.Mode = ccw.ModeAnalysis
	}
	if p.Category == "" {
		p.Category = ccw.CategoryUser
	}

	cwd, err := filepath.Abs(cdOrDot(p.CD))
	if err != nil {
		return nil, fmt.Errorf("resolve working directory %q: %w", p.CD, err)
	}

	st, err := r.Factory.ForProject(cwd)
	if err != nil {
		return nil, err
	}

	resumeLatest, resumeIDs, err := parseResume(p.Resume)
	if err != nil {
		return nil, err
	}
	plan, err := resume.NewEngine(st, r.Registry).Plan(resume.Request{
		Tool:              p.Tool,
		CD:                cwd,
		ResumeIDs:         resumeIDs,
		ResumeLatest:      resumeLatest,
		CustomID:          p.ID,
		ForcePromptConcat: p.NoNative,
	})
	if err != nil {
		return nil, err
	}

	finalPrompt, native := buildPrompt(p, plan.Decision)
	inv, err := def.BuildInvocation(tools.InvocationRequest{
		Prompt:      finalPrompt,
		Mode:        p.Mode,
		Model:       p.Model,
		WorkingDir:  cwd,
		IncludeDirs: p.IncludeDirs,
		Native:      native,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	execID := ccw.NewExecutionID(start)
	res, err := r.Executor.Run(ctx, execID, executor.Request{
		Command:  inv.Command,
		Args:     inv.Args,
		Dir:      inv.Dir,
		Stdin:    inv.Stdin,
		OnOutput: p.OnOutput,
		Timeout:  p.Timeout,
	})
	if err != nil {
		return nil, err
	}

	status := executor.DetermineStatus(res, def.FatalMarkers)
	turn := ccw.ConversationTurn{
		Timestamp:  start,
		Prompt:     p.Prompt,
		DurationMS: res.Duration.Milliseconds(),
		Status:     status,
		Output:     ccw.NewTurnOutput(res.Stdout, res.Stderr, p.CacheOutput),
	}
	if !res.TimedOut {
		code := res.ExitCode
		turn.ExitCode = &code
	}

	rec := r.persist(st, p, plan, turn, start)

	// Discovery is awaited before the execution resolves, so it can
	// never outlive process teardown.
	r.linkNativeSession(st, p.Tool, start, cwd, finalPrompt, plan, rec)

	out := &Output{
		Success:      status == ccw.StatusSuccess,
		ExecutionID:  execID,
		Execution:    turn,
		Conversation: rec,
		Stdout:       res.Stdout,
		Stderr:       res.Stderr,
	}
	if rec != nil && len(rec.Turns) > 0 {
		out.Execution = rec.Turns[len(rec.Turns)-1]
	}
	return out, nil
}

// persist writes the new turn according to the plan's persist mode.
// Store failures are logged and degrade to an in-memory record; the
// execution result still reaches the caller.
func (r *Runner) persist(st *store.Store, p Params, plan *resume.Plan, turn ccw.ConversationTurn, start time.Time) *ccw.ConversationRecord {
	switch plan.Mode {
	case resume.PersistAppend:
		rec, err := st.Append(plan.ConversationID, turn)
		if err != nil {
			r.logf("persist: append to %s: %v", plan.ConversationID, err)
			rec = plan.Sources[0]
			rec.AppendTurn(turn)
		}
		return rec

	case resume.PersistMergeAppendAll:
		var last *ccw.ConversationRecord
		for i := len(plan.Sources) - 1; i >= 0; i-- {
			src := plan.Sources[i]
			rec, err := st.Append(src.ID, turn)
			if err != nil {
				r.logf("persist: append to %s: %v", src.ID, err)
				continue
			}
			last = rec
		}
		if last == nil {
			last = plan.Sources[0]
			last.AppendTurn(turn)
		}
		return last

	case resume.PersistMergeNew:
		merged, err := prompt.MergeConversations(plan.Sources)
		if err != nil {
			r.logf("persist: merge: %v", err)
			return nil
		}
		rec := r.newRecord(p, plan.ConversationID, start)
		rec.Turns = merged.MergedTurns
		rec.TurnCount = len(rec.Turns)
		rec.TotalDurationMS = merged.TotalDuration
		if n := len(rec.Turns); n > 0 {
			rec.CreatedAt = rec.Turns[0].Timestamp
			rec.LatestStatus = rec.Turns[n-1].Status
		}
		rec.AppendTurn(turn)
		if err := st.Save(rec); err != nil {
			r.logf("persist: save merged %s: %v", rec.ID, err)
		}
		return rec

	default: // PersistNew, PersistFork
		id := plan.ConversationID
		if id == "" {
			id = ccw.NewConversationID(p.Tool, start)
		}
		rec := r.newRecord(p, id, start)
		rec.AppendTurn(turn)
		if err := st.Save(rec); err != nil {
			r.logf("persist: save %s: %v", rec.ID, err)
		}
		return rec
	}
}

func (r *Runner) newRecord(p Params, id string, start time.Time) *ccw.ConversationRecord {
	return &ccw.ConversationRecord{
		ID:                id,
		CreatedAt:         start,
		UpdatedAt:         start,
		Tool:              p.Tool,
		Model:             p.Model,
		Mode:              p.Mode,
		Category:          p.Category,
		ParentExecutionID: p.ParentExecutionID,
	}
}

// linkNativeSession runs post-exit session discovery and persists the
// mapping for every conversation that received the new turn.
func (r *Runner) linkNativeSession(st *store.Store, tool string, start time.Time, cwd, finalPrompt string, plan *resume.Plan, rec *ccw.ConversationRecord) {
	session, err := r.Tracker.TrackNewSession(tool, start, cwd, finalPrompt)
	if err != nil || session == nil {
		if err != nil {
			r.logf("discovery: %v", err)
		}
		return
	}

	ids := []string{}
	if plan.Mode == resume.PersistMergeAppendAll {
		for _, src := range plan.Sources {
			ids = append(ids, src.ID)
		}
	} else if rec != nil {
		ids = append(ids, rec.ID)
	}
	for _, id := range ids {
		m := ccw.NativeSessionMapping{
			CCWID:             id,
			Tool:              tool,
			NativeSessionID:   session.SessionID,
			NativeSessionPath: session.FilePath,
			ProjectHash:       session.ProjectHash,
			CreatedAt:         time.Now(),
		}
		if err := st.SaveNativeSessionMapping(m); err != nil {
			r.logf("discovery: save mapping for %s: %v", id, err)
		}
	}
}

// buildPrompt produces the final prompt text and the native resume
// request for the chosen strategy.
func buildPrompt(p Params, d *ccw.ResumeDecision) (string, *tools.NativeResumeConfig) {
	if d == nil {
		return p.Prompt, nil
	}
	switch d.Strategy {
	case ccw.StrategyNative:
		return p.Prompt, &tools.NativeResumeConfig{
			Enabled:   true,
			SessionID: d.NativeSessionID,
			IsLatest:  d.IsLatest,
		}
	case ccw.StrategyHybrid:
		text := prompt.BuildContextPrefix(d.ContextTurns, p.Format) + p.Prompt
		return text, &tools.NativeResumeConfig{
			Enabled:   true,
			SessionID: d.NativeSessionID,
		}
	default:
		return prompt.BuildFromTurns(d.ContextTurns, p.Prompt, p.Format), nil
	}
}

func parseResume(s string) (latest bool, ids []string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil, nil
	}
	if s == "true" {
		return true, nil, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return false, nil, fmt.Errorf("malformed resume list %q", s)
		}
		ids = append(ids, part)
	}
	return false, ids, nil
}

func cdOrDot(cd string) string {
	if cd == "" {
		return "."
	}
	return cd
}
