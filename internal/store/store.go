// Package store persists conversation records and native session
// mappings in a per-project bbolt database. Each project base dir owns
// one database file; handles are created through an explicit Factory
// rather than a module-level cache.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// DBRelPath is the database location under a project base dir.
const DBRelPath = ".ccw/conversations.db"

var (
	bucketConversations  = []byte("conversations")
	bucketNativeSessions = []byte("native_sessions")
)

// ErrNotFound marks a conversation id with no persisted record.
var ErrNotFound = errors.New("conversation not found")

// Store is a handle to one project's conversation database. All writes
// go through bolt update transactions, so read-modify-write on a record
// is serialized by the database's single-writer discipline.
type Store struct {
	db      *bolt.DB
	baseDir string
}

// Open opens (creating if needed) the conversation database under
// baseDir.
func Open(baseDir string) (*Store, error) {
	path := filepath.Join(baseDir, filepath.FromSlash(DBRelPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open store in %s: %w", baseDir, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store in %s: %w", baseDir, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketNativeSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open store in %s: %w", baseDir, err)
	}
	return &Store{db: db, baseDir: baseDir}, nil
}

// BaseDir returns the project base dir this store belongs to.
func (s *Store) BaseDir() string { return s.baseDir }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Get loads a conversation record. Returns (nil, nil) when the id has
// no record; read misses are not errors.
func (s *Store) Get(id string) (*ccw.ConversationRecord, error) {
	var rec *ccw.ConversationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketConversations).Get([]byte(id))
		if v == nil {
			return nil
		}
		var r ccw.ConversationRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("decode conversation %s: %w", id, err)
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save writes a record under its id, replacing any existing value.
func (s *Store) Save(rec *ccw.ConversationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("save conversation: empty id")
	}
	enc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", rec.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConversations).Put([]byte(rec.ID), enc)
	})
}

// Append appends one turn to an existing conversation inside a single
// write transaction, so concurrent appends against the same id
// serialize instead of losing updates.
func (s *Store) Append(id string, turn ccw.ConversationTurn) (*ccw.ConversationRecord, error) {
	var rec ccw.ConversationRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("append to %s: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decode conversation %s: %w", id, err)
		}
		rec.AppendTurn(turn)
		enc, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode conversation %s: %w", id, err)
		}
		return b.Put([]byte(id), enc)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a record and its native session mapping.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("delete %s: %w", id, ErrNotFound)
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketNativeSessions).Delete([]byte(id))
	})
}

// BatchResult accounts for a batch delete.
type BatchResult struct {
	Deleted int      `json:"deleted"`
	Total   int      `json:"total"`
	Errors  []string `json:"errors,omitempty"`
}

// BatchDelete deletes each id independently, collecting per-id errors
// instead of stopping at the first failure.
func (s *Store) BatchDelete(ids []string) BatchResult {
	res := BatchResult{Total: len(ids)}
	for _, id := range ids {
		if err := s.Delete(id); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Deleted++
	}
	return res
}

// Filters narrows history queries. Zero values mean "no filter"; a zero
// Limit defaults to 50.
type Filters struct {
	Limit    int
	Tool     string
	Status   ccw.Status
	Category ccw.Category
	Search   string
}

func (f Filters) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// History returns conversation summaries newest-first by updated_at
// (created_at fallback), filtered and truncated to the limit.
func (s *Store) History(f Filters) ([]ccw.Summary, error) {
	var out []ccw.Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var rec ccw.ConversationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// Malformed entries degrade to "not found" rather than
				// failing the whole listing.
				return nil
			}
			if !matches(&rec, f) {
				return nil
			}
			sum := rec.Summarize()
			sum.BaseDir = s.baseDir
			out = append(out, sum)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SortTime().After(out[j].SortTime())
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func matches(rec *ccw.ConversationRecord, f Filters) bool {
	if f.Tool != "" && rec.Tool != f.Tool {
		return false
	}
	if f.Status != "" && rec.LatestStatus != f.Status {
		return false
	}
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if strings.Contains(strings.ToLower(rec.ID), needle) {
			return true
		}
		for _, t := range rec.Turns {
			if strings.Contains(strings.ToLower(t.Prompt), needle) {
				return true
			}
		}
		return false
	}
	return true
}

// SaveNativeSessionMapping stores the conversation → native session
// link, replacing any prior mapping for the conversation.
func (s *Store) SaveNativeSessionMapping(m ccw.NativeSessionMapping) error {
	if m.CCWID == "" {
		return fmt.Errorf("save native session mapping: empty ccw_id")
	}
	enc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode native session mapping %s: %w", m.CCWID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNativeSessions).Put([]byte(m.CCWID), enc)
	})
}

// GetNativeSessionMapping loads the mapping for a conversation, or
// (nil, nil) when none exists.
func (s *Store) GetNativeSessionMapping(ccwID string) (*ccw.NativeSessionMapping, error) {
	var m *ccw.NativeSessionMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketNativeSessions).Get([]byte(ccwID))
		if v == nil {
			return nil
		}
		var mm ccw.NativeSessionMapping
		if err := json.Unmarshal(v, &mm); err != nil {
			return fmt.Errorf("decode native session mapping %s: %w", ccwID, err)
		}
		m = &mm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetNativeSessionID returns the tool's session id linked to a
// conversation, or "" when no mapping exists.
func (s *Store) GetNativeSessionID(ccwID string) (string, error) {
	m, err := s.GetNativeSessionMapping(ccwID)
	if err != nil || m == nil {
		return "", err
	}
	return m.NativeSessionID, nil
}
