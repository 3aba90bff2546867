package resume

import (
	"errors"
	"testing"
	"time"

	"github.com/ccw-dev/ccw/internal/ccw"
	"github.com/ccw-dev/ccw/internal/store"
	"github.com/ccw-dev/ccw/internal/tools"
)

type fixture struct {
	store  *store.Store
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &fixture{store: st, engine: NewEngine(st, tools.Builtin())}
}

func (f *fixture) save(t *testing.T, id, tool string, updated time.Time) *ccw.ConversationRecord {
	t.Helper()
	rec := &ccw.ConversationRecord{ID: id, Tool: tool, Category: ccw.CategoryUser}
	rec.AppendTurn(ccw.ConversationTurn{
		Timestamp: updated,
		Prompt:    "prompt of " + id,
		Status:    ccw.StatusSuccess,
		Output:    ccw.NewTurnOutput("response of "+id, "", true),
	})
	if err := f.store.Save(rec); err != nil {
		t.Fatalf("Save %s: %v", id, err)
	}
	return rec
}

func (f *fixture) mapSession(t *testing.T, id, tool, sessionID string) {
	t.Helper()
	err := f.store.SaveNativeSessionMapping(ccw.NativeSessionMapping{
		CCWID: id, Tool: tool, NativeSessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("SaveNativeSessionMapping: %v", err)
	}
}

func TestPlan_FreshConversation(t *testing.T) {
	f := newFixture(t)
	plan, err := f.engine.Plan(Request{Tool: "claude"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistNew {
		t.Errorf("mode = %d, want PersistNew", plan.Mode)
	}
	if plan.Decision != nil {
		t.Errorf("decision = %+v, want nil for fresh", plan.Decision)
	}
}

func TestPlan_CustomIDUnused(t *testing.T) {
	f := newFixture(t)
	plan, err := f.engine.Plan(Request{Tool: "claude", CustomID: "my-conv"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistNew || plan.ConversationID != "my-conv" {
		t.Errorf("plan = %+v, want new conversation under my-conv", plan)
	}
}

func TestPlan_CustomIDExistingContinues(t *testing.T) {
	f := newFixture(t)
	f.save(t, "my-conv", "claude", time.Now().UTC())

	plan, err := f.engine.Plan(Request{Tool: "claude", CustomID: "my-conv"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistAppend || plan.ConversationID != "my-conv" {
		t.Errorf("plan = %+v, want append to my-conv", plan)
	}
	if plan.Decision.Strategy != ccw.StrategyPromptConcat {
		t.Errorf("strategy = %s, want prompt_concat without a mapping", plan.Decision.Strategy)
	}
	if len(plan.Decision.ContextTurns) != 1 {
		t.Errorf("context turns = %d, want 1", len(plan.Decision.ContextTurns))
	}
}

func TestPlan_SingleID_NativeEligible(t *testing.T) {
	f := newFixture(t)
	f.save(t, "c1", "claude", time.Now().UTC())
	f.mapSession(t, "c1", "claude", "sess-native")

	plan, err := f.engine.Plan(Request{Tool: "claude", ResumeIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistAppend {
		t.Errorf("mode = %d, want PersistAppend", plan.Mode)
	}
	d := plan.Decision
	if d.Strategy != ccw.StrategyNative || d.NativeSessionID != "sess-native" {
		t.Errorf("decision = %+v, want native via sess-native", d)
	}
	if len(d.ContextTurns) != 0 {
		t.Error("native resume must not carry synthesized context")
	}
}

func TestPlan_SingleID_NativeIneligibility(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture) Request
	}{
		{
			name: "tool without native support",
			setup: func(t *testing.T, f *fixture) Request {
				f.save(t, "c1", "gemini", now)
				f.mapSession(t, "c1", "gemini", "sess-x")
				return Request{Tool: "gemini", ResumeIDs: []string{"c1"}}
			},
		},
		{
			name: "cross-tool resume",
			setup: func(t *testing.T, f *fixture) Request {
				f.save(t, "c1", "codex", now)
				f.mapSession(t, "c1", "codex", "sess-x")
				return Request{Tool: "claude", ResumeIDs: []string{"c1"}}
			},
		},
		{
			name: "no session mapping",
			setup: func(t *testing.T, f *fixture) Request {
				f.save(t, "c1", "claude", now)
				return Request{Tool: "claude", ResumeIDs: []string{"c1"}}
			},
		},
		{
			name: "forced prompt concat",
			setup: func(t *testing.T, f *fixture) Request {
				f.save(t, "c1", "claude", now)
				f.mapSession(t, "c1", "claude", "sess-x")
				return Request{Tool: "claude", ResumeIDs: []string{"c1"}, ForcePromptConcat: true}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := tt.setup(t, f)
			plan, err := f.engine.Plan(req)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if plan.Decision.Strategy != ccw.StrategyPromptConcat {
				t.Errorf("strategy = %s, want prompt_concat", plan.Decision.Strategy)
			}
			if len(plan.Decision.ContextTurns) == 0 {
				t.Error("prompt_concat needs the source turns as context")
			}
		})
	}
}

func TestPlan_SingleID_Missing(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Plan(Request{Tool: "claude", ResumeIDs: []string{"ghost"}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPlan_SingleID_ForkWithCustomID(t *testing.T) {
	f := newFixture(t)
	f.save(t, "c1", "claude", time.Now().UTC())

	plan, err := f.engine.Plan(Request{Tool: "claude", ResumeIDs: []string{"c1"}, CustomID: "branch"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistFork || plan.ConversationID != "branch" {
		t.Errorf("plan = %+v, want fork into branch", plan)
	}
	if len(plan.Sources) != 1 || plan.Sources[0].ID != "c1" {
		t.Errorf("sources = %+v", plan.Sources)
	}
}

func TestPlan_Latest(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	f.save(t, "older", "claude", base)
	f.save(t, "newer", "claude", base.Add(time.Hour))
	f.save(t, "other-tool", "codex", base.Add(2*time.Hour))

	plan, err := f.engine.Plan(Request{Tool: "claude", ResumeLatest: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistAppend || plan.ConversationID != "newer" {
		t.Errorf("plan = %+v, want append to newer", plan)
	}
	// Claude supports native continue-latest.
	if plan.Decision.Strategy != ccw.StrategyNative || !plan.Decision.IsLatest {
		t.Errorf("decision = %+v, want native latest", plan.Decision)
	}
}

func TestPlan_LatestNoHistory(t *testing.T) {
	f := newFixture(t)
	plan, err := f.engine.Plan(Request{Tool: "claude", ResumeLatest: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// No local record to extend, but the tool can still continue its own
	// latest session.
	if plan.Mode != PersistNew {
		t.Errorf("mode = %d, want PersistNew", plan.Mode)
	}
	if plan.Decision.Strategy != ccw.StrategyNative || !plan.Decision.IsLatest {
		t.Errorf("decision = %+v, want native latest", plan.Decision)
	}
}

func TestPlan_LatestWithoutNativeSupport(t *testing.T) {
	f := newFixture(t)
	f.save(t, "g1", "gemini", time.Now().UTC())

	plan, err := f.engine.Plan(Request{Tool: "gemini", ResumeLatest: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Decision.Strategy != ccw.StrategyPromptConcat {
		t.Errorf("strategy = %s, want prompt_concat", plan.Decision.Strategy)
	}
	if len(plan.Decision.ContextTurns) != 1 {
		t.Errorf("context turns = %d, want 1", len(plan.Decision.ContextTurns))
	}
}

func TestPlan_Merge_AllMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Plan(Request{Tool: "claude", ResumeIDs: []string{"ghost-1", "ghost-2"}})
	if !errors.Is(err, ErrMergeSourceMissing) {
		t.Errorf("err = %v, want ErrMergeSourceMissing", err)
	}
}

func TestPlan_Merge_PartialLoadSkipsMissing(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	f.save(t, "c1", "gemini", base)
	f.save(t, "c2", "gemini", base.Add(time.Hour))

	plan, err := f.engine.Plan(Request{Tool: "gemini", ResumeIDs: []string{"c1", "ghost", "c2"}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Sources) != 2 {
		t.Errorf("sources = %d, want 2 (missing skipped)", len(plan.Sources))
	}
	if plan.Mode != PersistMergeAppendAll {
		t.Errorf("mode = %d, want PersistMergeAppendAll", plan.Mode)
	}
	if plan.Decision.Strategy != ccw.StrategyPromptConcat {
		t.Errorf("strategy = %s", plan.Decision.Strategy)
	}
	// Merged context covers both sources with reassigned numbering.
	turns := plan.Decision.ContextTurns
	if len(turns) != 2 || turns[0].SourceID != "c1" || turns[1].SourceID != "c2" {
		t.Errorf("context turns = %+v", turns)
	}
	if turns[0].Turn != 1 || turns[1].Turn != 2 {
		t.Errorf("renumbering wrong: %d, %d", turns[0].Turn, turns[1].Turn)
	}
}

func TestPlan_Merge_CustomIDCreatesMergedConversation(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	f.save(t, "c1", "gemini", base)
	f.save(t, "c2", "gemini", base.Add(time.Hour))

	plan, err := f.engine.Plan(Request{Tool: "gemini", ResumeIDs: []string{"c1", "c2"}, CustomID: "combined"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != PersistMergeNew || plan.ConversationID != "combined" {
		t.Errorf("plan = %+v, want merge-new under combined", plan)
	}
}

func TestPlan_Merge_HybridPicksLatestNativePrimary(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	f.save(t, "native-old", "claude", base)
	f.mapSession(t, "native-old", "claude", "sess-old")
	f.save(t, "native-new", "claude", base.Add(2*time.Hour))
	f.mapSession(t, "native-new", "claude", "sess-new")
	f.save(t, "plain", "claude", base.Add(time.Hour))

	plan, err := f.engine.Plan(Request{Tool: "claude", ResumeIDs: []string{"native-old", "plain", "native-new"}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	d := plan.Decision
	if d.Strategy != ccw.StrategyHybrid {
		t.Fatalf("strategy = %s, want hybrid", d.Strategy)
	}
	if d.PrimaryConversationID != "native-new" || d.NativeSessionID != "sess-new" {
		t.Errorf("primary = %s via %s, want native-new via sess-new", d.PrimaryConversationID, d.NativeSessionID)
	}
	// The non-primary sources become merged context.
	sources := map[string]bool{}
	for _, turn := range d.ContextTurns {
		sources[turn.SourceID] = true
	}
	if !sources["native-old"] || !sources["plain"] || sources["native-new"] {
		t.Errorf("context sources = %v", sources)
	}
}

func TestPlan_Merge_ForcePromptConcatOverridesNative(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	f.save(t, "c1", "claude", base)
	f.mapSession(t, "c1", "claude", "sess-1")
	f.save(t, "c2", "claude", base.Add(time.Hour))
	f.mapSession(t, "c2", "claude", "sess-2")

	plan, err := f.engine.Plan(Request{
		Tool:              "claude",
		ResumeIDs:         []string{"c1", "c2"},
		ForcePromptConcat: true,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Decision.Strategy != ccw.StrategyPromptConcat {
		t.Errorf("strategy = %s, want prompt_concat", plan.Decision.Strategy)
	}
	if len(plan.Decision.ContextTurns) != 2 {
		t.Errorf("context turns = %d, want all merged", len(plan.Decision.ContextTurns))
	}
}
