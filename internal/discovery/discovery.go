// Package discovery locates the session artifact a CLI tool wrote for a
// just-finished execution and links it back to the internal
// conversation id. Matching runs after process exit: candidates are
// filtered by creation time and project hash, then disambiguated by
// prompt content so concurrent executions against the same project
// resolve to the right file.
package discovery

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccw-dev/ccw/internal/tools"
)

// Session identifies a discovered native session artifact.
type Session struct {
	SessionID   string
	FilePath    string
	ProjectHash string
}

// Tracker matches executions to native session files using the tool
// registry's session locations.
type Tracker struct {
	registry *tools.Registry
}

// NewTracker creates a tracker over the given tool registry.
func NewTracker(registry *tools.Registry) *Tracker {
	return &Tracker{registry: registry}
}

// mtimeSlack absorbs filesystem timestamp granularity when comparing a
// session file's modification time against the execution start.
const mtimeSlack = 2 * time.Second

// TrackNewSession searches the tool's session storage for an artifact
// created at or after start in the project matching workingDir. When
// several candidates qualify, the one whose leading user prompt best
// matches promptText wins. Returns (nil, nil) when the tool exposes no
// sessions or nothing matched; absence is not an error.
func (t *Tracker) TrackNewSession(tool string, start time.Time, workingDir, promptText string) (*Session, error) {
	def, ok := t.registry.Get(tool)
	if !ok {
		return nil, nil
	}
	root := def.SessionRoot()
	if root == "" {
		return nil, nil
	}

	hash := EncodeProjectDir(workingDir)
	projectDir := filepath.Join(root, hash)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, nil // tool never wrote a session for this project
	}

	cutoff := start.Add(-mtimeSlack)
	var best *Session
	bestScore := -1
	var bestMtime time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(projectDir, e.Name())
		score := promptScore(firstUserPrompt(path), promptText)
		if score > bestScore || (score == bestScore && info.ModTime().After(bestMtime)) {
			bestScore = score
			bestMtime = info.ModTime()
			best = &Session{
				SessionID:   strings.TrimSuffix(e.Name(), ".jsonl"),
				FilePath:    path,
				ProjectHash: hash,
			}
		}
	}
	return best, nil
}

// EncodeProjectDir converts a working directory to the dash-encoded
// project directory name claude-style tools use: every path separator
// (and every "." and "_") becomes "-", so "/Users/x/proj" maps to
// "-Users-x-proj".
func EncodeProjectDir(path string) string {
	cleaned := filepath.Clean(path)
	var b strings.Builder
	for _, r := range cleaned {
		switch r {
		case filepath.Separator, '.', '_':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// firstUserPrompt reads the first user message text from a JSONL
// session file, scanning at most the first 50 lines.
func firstUserPrompt(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; i < 50 && scanner.Scan(); i++ {
		line := scanner.Bytes()
		if len(line) == 0 || !strings.Contains(string(line), `"type":"user"`) {
			continue
		}
		var entry struct {
			Type    string `json:"type"`
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		}
		if json.Unmarshal(line, &entry) != nil || entry.Type != "user" {
			continue
		}
		if text := contentText(entry.Message.Content); text != "" {
			return text
		}
	}
	return ""
}

// contentText extracts text from a message content field that is either
// a bare string or a block array.
func contentText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &blocks) == nil {
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				return b.Text
			}
		}
	}
	return ""
}

// promptScore measures how well a session's first prompt matches the
// executed prompt: the length of the common prefix, with a bonus for an
// exact match. Higher is better; an unreadable prompt scores zero.
func promptScore(sessionPrompt, executedPrompt string) int {
	a := strings.TrimSpace(sessionPrompt)
	b := strings.TrimSpace(executedPrompt)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return len(a) + 1
	}
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
