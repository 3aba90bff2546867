// Package prompt builds final prompt text from conversation history:
// full prior-turn concatenation for tools without native resume, a
// context prefix for hybrid resume, and the multi-source merge
// algorithm.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// Format selects the textual serialization of prior turns.
type Format string

const (
	FormatPlain Format = "plain"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// BuildMultiTurnPrompt serializes a conversation's prior turns and
// appends the new prompt. Used for the prompt_concat strategy.
func BuildMultiTurnPrompt(rec *ccw.ConversationRecord, newPrompt string, format Format) string {
	return BuildFromTurns(rec.Turns, newPrompt, format)
}

// BuildFromTurns is BuildMultiTurnPrompt over an explicit turn
// sequence, e.g. the merged turns of several source conversations.
func BuildFromTurns(turns []ccw.ConversationTurn, newPrompt string, format Format) string {
	if len(turns) == 0 {
		return newPrompt
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n\n")
	b.WriteString(serializeTurns(turns, format))
	b.WriteString("\nNew request:\n")
	b.WriteString(newPrompt)
	return b.String()
}

// BuildContextPrefix serializes a subset of turns as context to prepend
// verbatim before a new prompt. Used for the hybrid strategy, where the
// native tool carries its own session continuity for the remainder.
func BuildContextPrefix(turns []ccw.ConversationTurn, format Format) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Context from related conversations:\n\n")
	b.WriteString(serializeTurns(turns, format))
	b.WriteString("\n")
	return b.String()
}

func serializeTurns(turns []ccw.ConversationTurn, format Format) string {
	switch format {
	case FormatYAML:
		return serializeYAML(turns)
	case FormatJSON:
		return serializeJSON(turns)
	default:
		return serializePlain(turns)
	}
}

func serializePlain(turns []ccw.ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[Turn %d — %s]\n", t.Turn, t.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "Prompt: %s\n", t.Prompt)
		fmt.Fprintf(&b, "Response: %s\n\n", t.Output.Response())
	}
	return b.String()
}

func serializeYAML(turns []ccw.ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "- turn: %d\n", t.Turn)
		fmt.Fprintf(&b, "  timestamp: %s\n", t.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "  prompt: %s\n", yamlScalar(t.Prompt))
		fmt.Fprintf(&b, "  response: %s\n", yamlScalar(t.Output.Response()))
	}
	return b.String()
}

// yamlScalar renders a string as a YAML block scalar when it spans
// lines, a quoted scalar otherwise.
func yamlScalar(s string) string {
	if !strings.Contains(s, "\n") {
		return fmt.Sprintf("%q", s)
	}
	var b strings.Builder
	b.WriteString("|\n")
	for _, line := range strings.Split(s, "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func serializeJSON(turns []ccw.ConversationTurn) string {
	type jsonTurn struct {
		Turn      int    `json:"turn"`
		Timestamp string `json:"timestamp"`
		Prompt    string `json:"prompt"`
		Response  string `json:"response"`
	}
	var b strings.Builder
	for _, t := range turns {
		enc, err := json.Marshal(jsonTurn{
			Turn:      t.Turn,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Prompt:    t.Prompt,
			Response:  t.Output.Response(),
		})
		if err != nil {
			continue
		}
		b.Write(enc)
		b.WriteString("\n")
	}
	return b.String()
}
