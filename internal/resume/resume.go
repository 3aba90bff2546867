// Package resume decides how prior conversation context reaches a tool:
// through the tool's own session continuation (native), a synthesized
// context prefix on top of a native session (hybrid), or full textual
// concatenation of prior turns (prompt_concat). Callers get one resume
// vocabulary regardless of what the underlying tool supports.
package resume

import (
	"errors"
	"fmt"

	"github.com/ccw-dev/ccw/internal/ccw"
	"github.com/ccw-dev/ccw/internal/prompt"
	"github.com/ccw-dev/ccw/internal/store"
	"github.com/ccw-dev/ccw/internal/tools"
)

// ErrMergeSourceMissing is returned when a multi-id resume resolves
// zero source conversations. It is raised before any process spawns.
var ErrMergeSourceMissing = errors.New("no resolvable source conversations for merge")

// Request is the resume input for one execution.
type Request struct {
	Tool      string
	CD        string
	ResumeIDs []string
	// ResumeLatest continues the tool's most recent conversation
	// (resume=true in the caller vocabulary).
	ResumeLatest      bool
	CustomID          string
	ForcePromptConcat bool
}

// PersistMode says how the orchestrator persists the new turn.
type PersistMode int

const (
	// PersistNew creates a fresh conversation and appends the turn.
	PersistNew PersistMode = iota
	// PersistAppend appends to one existing conversation in place.
	PersistAppend
	// PersistFork creates a new conversation; source turns are context
	// only, never copied as owned turns.
	PersistFork
	// PersistMergeNew creates one merged conversation under a custom id.
	PersistMergeNew
	// PersistMergeAppendAll appends the new turn independently to every
	// source conversation.
	PersistMergeAppendAll
)

// Plan is the resolved execution plan for one invocation.
type Plan struct {
	Mode           PersistMode
	ConversationID string // conversation receiving the turn; unused for PersistMergeAppendAll
	Sources        []*ccw.ConversationRecord
	Decision       *ccw.ResumeDecision // nil for a brand-new conversation
}

// Engine resolves resume requests against the store and tool registry.
type Engine struct {
	store    *store.Store
	registry *tools.Registry
}

// NewEngine creates a resume engine.
func NewEngine(st *store.Store, registry *tools.Registry) *Engine {
	return &Engine{store: st, registry: registry}
}

// Plan runs the resume state machine. Setup errors (unknown resume ids,
// empty merge source sets) are returned before any side effect.
func (e *Engine) Plan(req Request) (*Plan, error) {
	switch {
	case req.ResumeLatest:
		return e.planLatest(req)
	case len(req.ResumeIDs) == 0:
		return e.planFresh(req)
	case len(req.ResumeIDs) == 1:
		return e.planSingle(req)
	default:
		return e.planMerge(req)
	}
}

// planFresh handles executions with no resume ids. A custom id naming
// an existing conversation continues it in place.
func (e *Engine) planFresh(req Request) (*Plan, error) {
	if req.CustomID != "" {
		existing, err := e.store.Get(req.CustomID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return e.appendPlan(req, existing)
		}
		return &Plan{Mode: PersistNew, ConversationID: req.CustomID}, nil
	}
	return &Plan{Mode: PersistNew}, nil
}

// planLatest handles resume=true: continue the tool's most recent
// conversation, natively when the tool allows it.
func (e *Engine) planLatest(req Request) (*Plan, error) {
	sums, err := e.store.History(store.Filters{Limit: 1, Tool: req.Tool})
	if err != nil {
		return nil, err
	}

	decision := &ccw.ResumeDecision{Strategy: ccw.StrategyPromptConcat}
	if e.registry.SupportsNativeResume(req.Tool) && !req.ForcePromptConcat {
		decision.Strategy = ccw.StrategyNative
		decision.IsLatest = true
	}

	if len(sums) == 0 {
		// Nothing local to append to; the tool may still carry its own
		// latest session.
		return &Plan{Mode: PersistNew, Decision: decision}, nil
	}

	src, err := e.store.Get(sums[0].ID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return &Plan{Mode: PersistNew, Decision: decision}, nil
	}
	if decision.Strategy == ccw.StrategyPromptConcat {
		decision.ContextTurns = src.Turns
	}
	decision.PrimaryConversationID = src.ID
	return &Plan{
		Mode:           PersistAppend,
		ConversationID: src.ID,
		Sources:        []*ccw.ConversationRecord{src},
		Decision:       decision,
	}, nil
}

// planSingle handles a single resume id: append in place, or fork when
// a differing custom id is supplied.
func (e *Engine) planSingle(req Request) (*Plan, error) {
	id := req.ResumeIDs[0]
	src, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("resume %s: %w", id, store.ErrNotFound)
	}

	if req.CustomID != "" && req.CustomID != id {
		plan, err := e.appendPlan(req, src)
		if err != nil {
			return nil, err
		}
		plan.Mode = PersistFork
		plan.ConversationID = req.CustomID
		return plan, nil
	}
	return e.appendPlan(req, src)
}

// appendPlan builds an append-mode plan for one source, consulting
// native eligibility for the strategy.
func (e *Engine) appendPlan(req Request, src *ccw.ConversationRecord) (*Plan, error) {
	decision := &ccw.ResumeDecision{
		Strategy:              ccw.StrategyPromptConcat,
		PrimaryConversationID: src.ID,
		ContextTurns:          src.Turns,
	}
	if sid := e.nativeSessionFor(req, src); sid != "" {
		decision.Strategy = ccw.StrategyNative
		decision.NativeSessionID = sid
		decision.ContextTurns = nil
	}
	return &Plan{
		Mode:           PersistAppend,
		ConversationID: src.ID,
		Sources:        []*ccw.ConversationRecord{src},
		Decision:       decision,
	}, nil
}

// planMerge handles multi-id resume. Sources that fail to load are
// skipped; zero resolved sources is ErrMergeSourceMissing.
func (e *Engine) planMerge(req Request) (*Plan, error) {
	var sources []*ccw.ConversationRecord
	for _, id := range req.ResumeIDs {
		src, err := e.store.Get(id)
		if err != nil || src == nil {
			continue
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("resume %v: %w", req.ResumeIDs, ErrMergeSourceMissing)
	}

	// Partition sources by native resumability; the most recently
	// updated native source becomes the primary session, the rest
	// become context.
	var primary *ccw.ConversationRecord
	var primarySession string
	var context []*ccw.ConversationRecord
	for _, src := range sources {
		sid := e.nativeSessionFor(req, src)
		if sid == "" {
			context = append(context, src)
			continue
		}
		if primary == nil || src.UpdatedAt.After(primary.UpdatedAt) {
			if primary != nil {
				context = append(context, primary)
			}
			primary, primarySession = src, sid
		} else {
			context = append(context, src)
		}
	}

	decision := &ccw.ResumeDecision{Strategy: ccw.StrategyPromptConcat}
	switch {
	case primary != nil && len(context) == 0:
		decision.Strategy = ccw.StrategyNative
		decision.PrimaryConversationID = primary.ID
		decision.NativeSessionID = primarySession
	case primary != nil:
		decision.Strategy = ccw.StrategyHybrid
		decision.PrimaryConversationID = primary.ID
		decision.NativeSessionID = primarySession
		merged, err := prompt.MergeConversations(context)
		if err != nil {
			return nil, err
		}
		decision.ContextTurns = merged.MergedTurns
	default:
		merged, err := prompt.MergeConversations(sources)
		if err != nil {
			return nil, err
		}
		decision.ContextTurns = merged.MergedTurns
	}

	plan := &Plan{Sources: sources, Decision: decision}
	if req.CustomID != "" {
		plan.Mode = PersistMergeNew
		plan.ConversationID = req.CustomID
	} else {
		plan.Mode = PersistMergeAppendAll
	}
	return plan, nil
}

// nativeSessionFor returns the native session id to continue for a
// source conversation, or "" when native resume is not eligible: the
// tool must support it, the source must have been recorded against the
// same tool, a mapping must exist, and the caller must not have forced
// prompt concatenation.
func (e *Engine) nativeSessionFor(req Request, src *ccw.ConversationRecord) string {
	if req.ForcePromptConcat || src.Tool != req.Tool || !e.registry.SupportsNativeResume(req.Tool) {
		return ""
	}
	sid, err := e.store.GetNativeSessionID(src.ID)
	if err != nil {
		return ""
	}
	return sid
}
