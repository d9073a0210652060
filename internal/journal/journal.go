// Package journal records every applied fix action to a local append-only
// file. Diagnostic results themselves are never persisted; only the actions
// that mutated agent, key, or known_hosts state leave a trace.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treykane/ssh-doctor/internal/appconfig"
	"github.com/treykane/ssh-doctor/internal/model"
)

// Entry is one applied fix persisted to journal.jsonl.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	HostAlias string        `json:"host_alias,omitempty"`
	FixType   model.FixType `json:"fix_type"`
	Target    string        `json:"target,omitempty"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
}

// Query controls entry filtering and bounded reads.
type Query struct {
	HostAlias string
	FixType   model.FixType
	Since     time.Time
	Limit     int
}

// Store provides append/read access to the local fix journal.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Append writes a single entry as one JSON line.
func (s *Store) Append(e Entry) error {
	path, err := appconfig.JournalFilePath()
	if err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Record is the convenience form used after executing a fix.
func (s *Store) Record(hostAlias string, action model.FixAction, result model.FixResult) error {
	target := action.Params["keyPath"]
	if target == "" {
		target = action.Params["hostname"]
	}
	return s.Append(Entry{
		HostAlias: hostAlias,
		FixType:   action.Type,
		Target:    target,
		Success:   result.Success,
		Message:   result.Message,
	})
}

// Read returns entries in append order, filtered by query, with optional
// limit keeping the most recent entries. Malformed lines are skipped rather
// than failing the read; a corrupt tail must not hide the rest of the
// history.
func (s *Store) Read(q Query) ([]Entry, error) {
	path, err := appconfig.JournalFilePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if !matches(e, q) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return out, nil
}

func matches(e Entry, q Query) bool {
	if strings.TrimSpace(q.HostAlias) != "" && e.HostAlias != q.HostAlias {
		return false
	}
	if q.FixType != "" && e.FixType != q.FixType {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	return true
}
