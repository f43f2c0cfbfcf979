// Package alert posts failure notifications to a webhook so that a
// human notices when an unattended run goes wrong.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/runstate"
)

// Kind identifies what went wrong.
type Kind string

const (
	KindRunFailure  Kind = "run_failure"
	KindCommitStuck Kind = "commit_stuck"
	KindLedgerDrift Kind = "ledger_drift"
)

// Event is a single notification payload.
type Event struct {
	Kind      Kind           `json:"kind"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	RunDir    string         `json:"run_dir,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunFailure builds an event for a pipeline run that returned an error.
// rec may be nil when the failure happened before the run directory was
// created.
func RunFailure(rec *runstate.Record, err error) Event {
	ev := Event{
		Kind:      KindRunFailure,
		Severity:  "high",
		Message:   fmt.Sprintf("Daily run failed: %v", err),
		Timestamp: time.Now().UTC(),
	}
	if rec != nil {
		ev.RunID = rec.RunID
		ev.RunDir = string(rec.Dir)
		ev.Details = map[string]any{
			"metro":  rec.Metro,
			"status": string(rec.Status),
		}
	}
	return ev
}

// CommitStuck builds an event for a run that was sent but never
// committed; its leads are invisible to freshness until someone runs
// the commit command against it.
func CommitStuck(rec *runstate.Record) Event {
	return Event{
		Kind:     KindCommitStuck,
		Severity: "high",
		Message: fmt.Sprintf(
			"Run %s is SENT but not COMMITTED; staged leads are missing from the sent-ledger",
			rec.RunID,
		),
		RunID:     rec.RunID,
		RunDir:    string(rec.Dir),
		Timestamp: time.Now().UTC(),
	}
}

// LedgerDrift builds an event for an inconsistency between the
// sent-ledger and the run records on disk.
func LedgerDrift(message string, details map[string]any) Event {
	return Event{
		Kind:      KindLedgerDrift,
		Severity:  "medium",
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Notifier delivers events to the configured webhook.
type Notifier struct {
	cfg    config.AlertConfig
	client *http.Client
}

// NewNotifier creates a Notifier from the alert config.
func NewNotifier(cfg config.AlertConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers events to the webhook URL and returns how many were
// accepted. Delivery failures are logged, never returned: alerting sits
// on failure paths and must not mask the original error.
func (n *Notifier) Send(ctx context.Context, events ...Event) int {
	if n.cfg.WebhookURL == "" || len(events) == 0 {
		return 0
	}

	sent := 0
	for _, ev := range events {
		if err := n.post(ctx, ev); err != nil {
			zap.L().Error("alert: webhook delivery failed",
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("alert: notification sent",
			zap.String("kind", string(ev.Kind)),
			zap.String("severity", ev.Severity),
		)
		sent++
	}
	return sent
}

func (n *Notifier) post(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "alert: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "alert: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "alert: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("alert: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
