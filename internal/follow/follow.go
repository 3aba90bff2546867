// Package follow streams new entries from a conversation's linked
// native session file as the tool appends them.
package follow

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Entry is one streamed session event.
type Entry struct {
	Timestamp time.Time
	Role      string
	Text      string
	// Synthetic marks entries generated by the follower itself, e.g.
	// the end-of-stream notice when the file disappears.
	Synthetic bool
}

// Stream opens a native session JSONL file, seeks to the end, and
// emits entries as they are appended. The channel closes when ctx is
// cancelled or the file is removed.
func Stream(ctx context.Context, sessionPath string) (<-chan Entry, error) {
	f, err := os.Open(sessionPath)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	// Watch the directory, not the file: inotify holds back the file's
	// own delete event while the follower keeps it open, so a direct
	// watch would never see the removal.
	if err := watcher.Add(filepath.Dir(sessionPath)); err != nil {
		watcher.Close()
		f.Close()
		return nil, err
	}

	ch := make(chan Entry, 64)
	go loop(ctx, f, watcher, filepath.Clean(sessionPath), ch)
	return ch, nil
}

func loop(ctx context.Context, f *os.File, watcher *fsnotify.Watcher, path string, ch chan<- Entry) {
	defer close(ch)
	defer f.Close()
	defer watcher.Close()

	reader := bufio.NewReader(f)
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) {
				debounce.Reset(100 * time.Millisecond)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				ch <- Entry{
					Timestamp: time.Now(),
					Role:      "system",
					Text:      "session file removed, stream ending",
					Synthetic: true,
				}
				return
			}

		case <-debounce.C:
			for {
				line, err := reader.ReadBytes('\n')
				if err != nil {
					break
				}
				if entry, ok := parseLine(line); ok {
					select {
					case ch <- entry:
					case <-ctx.Done():
						return
					}
				}
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// parseLine extracts role and text from a session JSONL line. Formats
// vary per tool but share the type/message/content shape.
func parseLine(line []byte) (Entry, bool) {
	var raw struct {
		Type      string    `json:"type"`
		Timestamp time.Time `json:"timestamp"`
		Message   struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false
	}

	entry := Entry{Timestamp: raw.Timestamp}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	switch raw.Type {
	case "user", "human":
		entry.Role = "user"
	case "assistant":
		entry.Role = "assistant"
	default:
		return Entry{}, false
	}
	entry.Text = contentText(raw.Message.Content)
	return entry, entry.Text != ""
}

func contentText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &blocks) == nil {
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				return b.Text
			}
			if b.Type == "tool_use" && b.Name != "" {
				return "[tool_use: " + b.Name + "]"
			}
		}
	}
	return ""
}
