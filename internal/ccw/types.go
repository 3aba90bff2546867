// Package ccw defines the conversation model shared by the execution
// engine: turns, conversation records, native session mappings, and the
// resume decision produced by the strategy engine.
package ccw

import (
	"fmt"
	"time"
)

// Status is the outcome of a single execution turn.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Mode controls how much freedom the tool gets over the working tree.
type Mode string

const (
	ModeAnalysis Mode = "analysis"
	ModeWrite    Mode = "write"
	ModeAuto     Mode = "auto"
)

// Category tags who initiated a conversation.
type Category string

const (
	CategoryUser     Category = "user"
	CategoryInternal Category = "internal"
	CategoryInsight  Category = "insight"
)

// PreviewLimit is the maximum size in bytes of a stored output preview.
const PreviewLimit = 2000

// TurnOutput holds the captured output of one execution. Previews are
// always present; full streams are retained only when output caching
// was enabled for the execution.
type TurnOutput struct {
	StdoutPreview string `json:"stdout_preview"`
	StderrPreview string `json:"stderr_preview"`
	Truncated     bool   `json:"truncated"`
	Cached        bool   `json:"cached"`
	StdoutFull    string `json:"stdout_full,omitempty"`
	StderrFull    string `json:"stderr_full,omitempty"`
}

// Response returns the best available response text for prompt
// reconstruction: the full stdout when cached, the preview otherwise.
func (o TurnOutput) Response() string {
	if o.Cached {
		return o.StdoutFull
	}
	return o.StdoutPreview
}

// NewTurnOutput builds a TurnOutput from raw streams, truncating
// previews at PreviewLimit and retaining full streams when cache is set.
func NewTurnOutput(stdout, stderr string, cache bool) TurnOutput {
	out := TurnOutput{
		StdoutPreview: stdout,
		StderrPreview: stderr,
		Cached:        cache,
	}
	if len(stdout) > PreviewLimit {
		out.StdoutPreview = stdout[:PreviewLimit]
		out.Truncated = true
	}
	if len(stderr) > PreviewLimit {
		out.StderrPreview = stderr[:PreviewLimit]
		out.Truncated = true
	}
	if cache {
		out.StdoutFull = stdout
		out.StderrFull = stderr
	}
	return out
}

// ConversationTurn is one prompt/response/status record within a
// conversation. Turn numbers form a contiguous ascending sequence
// starting at 1 within their conversation.
type ConversationTurn struct {
	Turn       int        `json:"turn"`
	Timestamp  time.Time  `json:"timestamp"`
	Prompt     string     `json:"prompt"`
	DurationMS int64      `json:"duration_ms"`
	Status     Status     `json:"status"`
	ExitCode   *int       `json:"exit_code"`
	Output     TurnOutput `json:"output"`

	// SourceID is set on merged turns to the originating conversation id.
	SourceID string `json:"source_id,omitempty"`
}

// ConversationRecord is a persisted, ordered sequence of turns against
// one tool/model, addressable by its ID.
type ConversationRecord struct {
	ID                string             `json:"id"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Tool              string             `json:"tool"`
	Model             string             `json:"model,omitempty"`
	Mode              Mode               `json:"mode"`
	Category          Category           `json:"category"`
	TotalDurationMS   int64              `json:"total_duration_ms"`
	TurnCount         int                `json:"turn_count"`
	LatestStatus      Status             `json:"latest_status,omitempty"`
	Turns             []ConversationTurn `json:"turns"`
	ParentExecutionID string             `json:"parent_execution_id,omitempty"`
}

// AppendTurn appends a turn, assigning the next turn number and
// updating the derived counters so the record invariants hold.
func (r *ConversationRecord) AppendTurn(t ConversationTurn) {
	t.Turn = len(r.Turns) + 1
	r.Turns = append(r.Turns, t)
	r.TurnCount = len(r.Turns)
	r.LatestStatus = t.Status
	r.TotalDurationMS += t.DurationMS
	r.UpdatedAt = t.Timestamp
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.Timestamp
	}
}

// Validate checks the record invariants: contiguous 1-based turn
// numbers, turn_count, latest_status and total_duration_ms consistency.
func (r *ConversationRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("conversation has no id")
	}
	if r.TurnCount != len(r.Turns) {
		return fmt.Errorf("conversation %s: turn_count %d != len(turns) %d", r.ID, r.TurnCount, len(r.Turns))
	}
	var total int64
	for i, t := range r.Turns {
		if t.Turn != i+1 {
			return fmt.Errorf("conversation %s: turn at index %d numbered %d", r.ID, i, t.Turn)
		}
		total += t.DurationMS
	}
	if len(r.Turns) > 0 {
		if r.LatestStatus != r.Turns[len(r.Turns)-1].Status {
			return fmt.Errorf("conversation %s: latest_status %q != last turn status %q", r.ID, r.LatestStatus, r.Turns[len(r.Turns)-1].Status)
		}
		if r.TotalDurationMS != total {
			return fmt.Errorf("conversation %s: total_duration_ms %d != sum of turns %d", r.ID, r.TotalDurationMS, total)
		}
	}
	return nil
}

// Summary is the lightweight history view of a conversation.
type Summary struct {
	ID              string    `json:"id"`
	Tool            string    `json:"tool"`
	Model           string    `json:"model,omitempty"`
	Category        Category  `json:"category"`
	TurnCount       int       `json:"turn_count"`
	LatestStatus    Status    `json:"latest_status"`
	TotalDurationMS int64     `json:"total_duration_ms"`
	FirstPrompt     string    `json:"first_prompt,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	BaseDir         string    `json:"base_dir,omitempty"`
}

// SortTime is the timestamp history ordering uses: updated_at with a
// created_at fallback.
func (s Summary) SortTime() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Summarize produces the history summary for a record.
func (r *ConversationRecord) Summarize() Summary {
	s := Summary{
		ID:              r.ID,
		Tool:            r.Tool,
		Model:           r.Model,
		Category:        r.Category,
		TurnCount:       r.TurnCount,
		LatestStatus:    r.LatestStatus,
		TotalDurationMS: r.TotalDurationMS,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Turns) > 0 {
		s.FirstPrompt = previewString(r.Turns[0].Prompt, 120)
	}
	return s
}

// NativeSessionMapping links a conversation id to the session artifact a
// tool created for it. It is a weak back-reference into the tool's own
// session-file id space; at most one mapping exists per conversation.
type NativeSessionMapping struct {
	CCWID             string    `json:"ccw_id"`
	Tool              string    `json:"tool"`
	NativeSessionID   string    `json:"native_session_id"`
	NativeSessionPath string    `json:"native_session_path"`
	ProjectHash       string    `json:"project_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

// Strategy selects how prior context reaches the tool on a resumed
// execution.
type Strategy string

const (
	// StrategyNative relies on the tool's own session continuation.
	StrategyNative Strategy = "native"
	// StrategyHybrid continues one native session and prepends a
	// synthesized prefix covering the remaining sources.
	StrategyHybrid Strategy = "hybrid"
	// StrategyPromptConcat embeds all prior turns in the prompt text.
	StrategyPromptConcat Strategy = "prompt_concat"
)

// ResumeDecision is the transient output of the resume strategy engine.
// It is never persisted.
type ResumeDecision struct {
	Strategy              Strategy
	IsLatest              bool
	PrimaryConversationID string
	NativeSessionID       string
	ContextTurns          []ConversationTurn
}

// NewConversationID generates the default conversation id for a tool:
// a sortable timestamp followed by the tool name.
func NewConversationID(tool string, now time.Time) string {
	return now.UTC().Format("20060102-150405") + "-" + tool
}

// NewExecutionID generates a unique id for a single execution.
func NewExecutionID(now time.Time) string {
	return fmt.Sprintf("exec-%d", now.UnixNano())
}

func previewString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
