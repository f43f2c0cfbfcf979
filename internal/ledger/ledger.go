// Package ledger implements the append-only sent-leads history: one
// JSON entry per newline-terminated line in a single global file. The
// ledger is the source of truth for "never send this lead again".
//
// Reads tolerate a corrupt tail (a process killed mid-append leaves at
// most one torn line, which is skipped); a line that was flushed and
// synced is never lost. Writes append whole lines through a buffered
// writer and fsync before reporting success. Single writer by
// operational convention.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/runstate"
)

// Entry is one committed lead. Unknown JSON fields survive a
// load/append cycle via Extra.
type Entry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Fingerprint string          `json:"fingerprint"`
	Host        string          `json:"host,omitempty"`
	Title       string          `json:"title,omitempty"`
	URL         string          `json:"url,omitempty"`
	Metro       string          `json:"metro,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	RunDir      runstate.RunDir `json:"run_dir,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownKeys = []string{
	"timestamp", "fingerprint", "host", "title", "url", "metro", "run_id", "run_dir",
}

// entryAlias avoids MarshalJSON recursion.
type entryAlias Entry

// MarshalJSON renders the entry with its extra fields inlined.
func (e Entry) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(entryAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses an entry, preserving unrecognized fields.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var a entryAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(m, k)
	}

	*e = Entry(a)
	if len(m) > 0 {
		e.Extra = m
	}
	return nil
}

// Ledger is the in-memory view of the sent-leads file: a membership set
// by fingerprint plus the set of run directories already folded in.
type Ledger struct {
	path    string
	entries []Entry
	members map[string]struct{}
	runDirs map[runstate.RunDir]struct{}
	skipped int
}

// Load scans the ledger file once into memory. A missing file is an
// empty ledger, not an error. Malformed lines are skipped with a warn
// log and counted.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		members: make(map[string]struct{}),
		runDirs: make(map[runstate.RunDir]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, eris.Wrapf(err, "ledger: open %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var e Entry
				if uerr := json.Unmarshal(trimmed, &e); uerr != nil {
					l.skipped++
					zap.L().Warn("ledger: skipping malformed line",
						zap.String("path", path),
						zap.Int("line", lineNo),
						zap.Error(uerr),
					)
				} else {
					l.add(e)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: read %s", path)
		}
	}

	return l, nil
}

func (l *Ledger) add(e Entry) {
	l.entries = append(l.entries, e)
	l.members[e.Fingerprint] = struct{}{}
	if e.RunDir != "" {
		l.runDirs[e.RunDir] = struct{}{}
	}
}

// Member reports whether a fingerprint has ever been committed.
func (l *Ledger) Member(fingerprint string) bool {
	_, ok := l.members[fingerprint]
	return ok
}

// HasRunDir reports whether any entry references the given run
// directory. This is the commit protocol's secondary idempotency guard,
// independent of fingerprint membership.
func (l *Ledger) HasRunDir(dir runstate.RunDir) bool {
	_, ok := l.runDirs[dir]
	return ok
}

// Append durably writes the entries as newline-terminated JSON lines
// and folds them into the in-memory view. Returns the number written.
func (l *Ledger) Append(entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrapf(err, "ledger: create dir %s", dir)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: open %s for append", l.path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return 0, eris.Wrap(err, "ledger: marshal entry")
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return 0, eris.Wrapf(err, "ledger: write %s", l.path)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, eris.Wrapf(err, "ledger: flush %s", l.path)
	}
	if err := f.Sync(); err != nil {
		return 0, eris.Wrapf(err, "ledger: sync %s", l.path)
	}

	for _, e := range entries {
		l.add(e)
	}

	zap.L().Info("ledger: appended entries",
		zap.String("path", l.path),
		zap.Int("count", len(entries)),
	)
	return len(entries), nil
}

// Len returns the number of well-formed entries loaded or appended.
func (l *Ledger) Len() int { return len(l.entries) }

// Skipped returns how many malformed lines the load pass dropped.
func (l *Ledger) Skipped() int { return l.skipped }

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Entries returns the loaded entries in file order. The slice is shared;
// callers must not mutate it.
func (l *Ledger) Entries() []Entry { return l.entries }

// Stats summarizes the ledger for reporting.
type Stats struct {
	Total                 int            `json:"total"`
	PerMetro              map[string]int `json:"per_metro"`
	DuplicateFingerprints int            `json:"duplicate_fingerprints"`
	MalformedLines        int            `json:"malformed_lines"`
	OldestEntry           *time.Time     `json:"oldest_entry,omitempty"`
	NewestEntry           *time.Time     `json:"newest_entry,omitempty"`
}

// Stats computes summary counts over the loaded entries.
func (l *Ledger) Stats() Stats {
	s := Stats{
		Total:          len(l.entries),
		PerMetro:       make(map[string]int),
		MalformedLines: l.skipped,
	}

	seen := make(map[string]struct{}, len(l.entries))
	for i := range l.entries {
		e := &l.entries[i]
		if e.Metro != "" {
			s.PerMetro[e.Metro]++
		}
		if _, dup := seen[e.Fingerprint]; dup {
			s.DuplicateFingerprints++
		}
		seen[e.Fingerprint] = struct{}{}

		ts := e.Timestamp
		if s.OldestEntry == nil || ts.Before(*s.OldestEntry) {
			s.OldestEntry = &ts
		}
		if s.NewestEntry == nil || ts.After(*s.NewestEntry) {
			s.NewestEntry = &ts
		}
	}
	return s
}
