// Package runstate persists the per-run record: a uniquely identified
// directory of artifacts plus a status field advanced through a fixed,
// forward-only state machine. The record on disk is the resume
// checkpoint for a restarted process.
package runstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Status is a run lifecycle state. Transitions are monotonic:
// STARTED → GENERATED → SENT → COMMITTED.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusGenerated Status = "GENERATED"
	StatusSent      Status = "SENT"
	StatusCommitted Status = "COMMITTED"
)

var statusRank = map[Status]int{
	StatusStarted:   0,
	StatusGenerated: 1,
	StatusSent:      2,
	StatusCommitted: 3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// RunDir identifies a run's artifact directory. The same string is both
// the filesystem path and the idempotency key recorded in ledger
// entries; keep it opaque and never rebuild it from its parts.
type RunDir string

func (d RunDir) String() string { return string(d) }

// Join returns the path of an artifact inside the run directory.
func (d RunDir) Join(name string) string { return filepath.Join(string(d), name) }

// Attempt records one process invocation that touched a run. Attempts
// are append-only postmortem data, never consulted for control flow.
type Attempt struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Outcome   string    `json:"outcome,omitempty"`
}

// PendingCommit describes the staged-but-uncommitted ledger entries a
// run intends to fold into the sent-ledger.
type PendingCommit struct {
	StagedCount int    `json:"staged_count"`
	StagedFile  string `json:"staged_file"`
}

const recordVersion = 1

// Record is the persisted unit of work: one pipeline execution for one
// metro on one day. Every status transition is flushed to run.json
// immediately; a restarted process resumes from the last persisted
// status.
type Record struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Dir     RunDir `json:"dir"`
	Metro   string `json:"metro"`
	Date    string `json:"date"`
	Status  Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`

	QueriesIssued       int `json:"queries_issued"`
	MergedCount         int `json:"merged_count"`
	FreshCount          int `json:"fresh_count"`
	SelectedCount       int `json:"selected_count"`
	SentHistoryAppended int `json:"sent_history_appended"`

	PendingCommit     *PendingCommit `json:"pending_commit,omitempty"`
	ScoringConfigHash string         `json:"scoring_config_hash,omitempty"`
	MessageID         string         `json:"message_id,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
	Attempts          []Attempt      `json:"attempts,omitempty"`
}

// ComputeRunID derives the deterministic run identifier from the UTC
// date, the metro, and the query seed. Two invocations on the same day
// for the same metro collide on purpose; the run directory, which embeds
// a wall-clock stamp, is what stays unique.
func ComputeRunID(date, metro, querySeed string) string {
	return shortHash(date + "|" + strings.ToLower(metro) + "|" + querySeed)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// Slug converts a metro name to a directory-safe slug.
func Slug(metro string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(metro) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Create builds a new run record under root, creates its directory, and
// persists it with status STARTED.
func Create(root, metro, querySeed string, now time.Time) (*Record, error) {
	now = now.UTC()
	date := now.Format("2006-01-02")
	dir := RunDir(filepath.Join(root, date, now.Format("20060102T150405Z")+"_"+Slug(metro)))

	rec := &Record{
		Version:   recordVersion,
		RunID:     ComputeRunID(date, metro, querySeed),
		Dir:       dir,
		Metro:     metro,
		Date:      date,
		Status:    StatusStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := os.MkdirAll(string(dir), 0o755); err != nil {
		return nil, eris.Wrapf(err, "runstate: create run dir %s", dir)
	}
	if err := rec.Save(); err != nil {
		return nil, err
	}

	zap.L().Info("runstate: run created",
		zap.String("run_id", rec.RunID),
		zap.String("dir", string(dir)),
		zap.String("metro", metro),
	)
	return rec, nil
}

// Load reads the persisted record from a run directory.
func Load(dir RunDir) (*Record, error) {
	data, err := os.ReadFile(dir.Join(RecordFile))
	if err != nil {
		return nil, eris.Wrapf(err, "runstate: read record in %s", dir)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrapf(err, "runstate: parse record in %s", dir)
	}
	if rec.Version > recordVersion {
		return nil, eris.Errorf("runstate: record version %d newer than supported %d", rec.Version, recordVersion)
	}
	if rec.Version == 0 {
		rec.Version = recordVersion
	}
	if !rec.Status.Valid() {
		return nil, eris.Errorf("runstate: unknown status %q in %s", rec.Status, dir)
	}
	rec.Dir = dir
	return &rec, nil
}

// Save atomically rewrites run.json. The record is written whole; the
// in-memory struct is the merge of everything persisted so far.
func (r *Record) Save() error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return eris.Wrap(err, "runstate: marshal record")
	}

	path := r.Dir.Join(RecordFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "runstate: write record %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "runstate: replace record %s", path)
	}
	return nil
}

// Advance moves the record to the given status and persists it. Moving
// backward (or to the current status) is a no-op: the state machine
// never reverses.
func (r *Record) Advance(s Status) error {
	if !s.Valid() {
		return eris.Errorf("runstate: invalid status %q", s)
	}
	if statusRank[s] <= statusRank[r.Status] {
		zap.L().Debug("runstate: ignoring status regression",
			zap.String("run_id", r.RunID),
			zap.String("from", string(r.Status)),
			zap.String("to", string(s)),
		)
		return nil
	}

	now := time.Now().UTC()
	r.Status = s
	r.UpdatedAt = now
	switch s {
	case StatusGenerated:
		r.GeneratedAt = &now
	case StatusSent:
		r.SentAt = &now
	case StatusCommitted:
		r.CommittedAt = &now
	}

	if err := r.Save(); err != nil {
		return err
	}

	zap.L().Info("runstate: status advanced",
		zap.String("run_id", r.RunID),
		zap.String("status", string(s)),
	)
	return nil
}

// BeginAttempt appends a new attempt entry for this process invocation
// and persists it. Returns the attempt id for CloseAttempt.
func (r *Record) BeginAttempt(now time.Time) (string, error) {
	a := Attempt{ID: uuid.New().String(), StartedAt: now.UTC()}
	r.Attempts = append(r.Attempts, a)
	if err := r.Save(); err != nil {
		return "", err
	}
	return a.ID, nil
}

// CloseAttempt records the outcome of a previously opened attempt.
func (r *Record) CloseAttempt(id, outcome string) error {
	for i := range r.Attempts {
		if r.Attempts[i].ID == id {
			r.Attempts[i].Outcome = outcome
			return r.Save()
		}
	}
	return eris.Errorf("runstate: unknown attempt %s", id)
}

// RecordError appends a short error note to the record (artifact-level
// detail goes to errors.log via AppendError).
func (r *Record) RecordError(note string) {
	r.Errors = append(r.Errors, note)
}
