package prompt

import (
	"errors"
	"sort"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// ErrNoSources is returned when a merge is attempted over zero resolved
// source conversations. An empty merge is an error, not an empty
// result.
var ErrNoSources = errors.New("merge requires at least one source conversation")

// MergeResult is the outcome of merging several source conversations.
type MergeResult struct {
	MergedTurns   []ccw.ConversationTurn
	TotalDuration int64
}

// MergeConversations concatenates the turns of all sources into one
// sequence ordered by original timestamp ascending, independent of the
// source list order. Each merged turn carries a source_id tag naming
// its originating conversation, and turn numbers are reassigned 1..N in
// timestamp order. TotalDuration is the sum of the sources'
// total_duration_ms.
func MergeConversations(sources []*ccw.ConversationRecord) (*MergeResult, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	res := &MergeResult{}
	for _, src := range sources {
		res.TotalDuration += src.TotalDurationMS
		for _, t := range src.Turns {
			t.SourceID = src.ID
			res.MergedTurns = append(res.MergedTurns, t)
		}
	}

	// Timestamp order, with source id and original turn number breaking
	// ties so the result is deterministic for any caller-supplied
	// source order.
	sort.SliceStable(res.MergedTurns, func(i, j int) bool {
		a, b := res.MergedTurns[i], res.MergedTurns[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.Turn < b.Turn
	})

	for i := range res.MergedTurns {
		res.MergedTurns[i].Turn = i + 1
	}
	return res, nil
}
