package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/runstate"
)

func TestRunFailure(t *testing.T) {
	rec := &runstate.Record{
		RunID:  "run-20250602-denver",
		Dir:    runstate.RunDir("/data/runs/2025-06-02/run-20250602-denver"),
		Metro:  "Denver",
		Status: runstate.StatusStarted,
	}

	ev := RunFailure(rec, assert.AnError)
	assert.Equal(t, KindRunFailure, ev.Kind)
	assert.Equal(t, "high", ev.Severity)
	assert.Contains(t, ev.Message, "Daily run failed")
	assert.Equal(t, "run-20250602-denver", ev.RunID)
	assert.Equal(t, "Denver", ev.Details["metro"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestRunFailure_NilRecord(t *testing.T) {
	ev := RunFailure(nil, assert.AnError)
	assert.Equal(t, KindRunFailure, ev.Kind)
	assert.Empty(t, ev.RunID)
	assert.Nil(t, ev.Details)
}

func TestCommitStuck(t *testing.T) {
	rec := &runstate.Record{
		RunID:  "run-20250601-boulder",
		Dir:    runstate.RunDir("/data/runs/2025-06-01/run-20250601-boulder"),
		Status: runstate.StatusSent,
	}

	ev := CommitStuck(rec)
	assert.Equal(t, KindCommitStuck, ev.Kind)
	assert.Contains(t, ev.Message, "run-20250601-boulder")
	assert.Contains(t, ev.Message, "SENT but not COMMITTED")
}

func TestLedgerDrift(t *testing.T) {
	ev := LedgerDrift("ledger references unknown run directory", map[string]any{
		"run_dir": "/gone/run-x",
	})
	assert.Equal(t, KindLedgerDrift, ev.Kind)
	assert.Equal(t, "medium", ev.Severity)
	assert.Equal(t, "/gone/run-x", ev.Details["run_dir"])
}

func TestNotifier_Send(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev Event
		err := json.NewDecoder(r.Body).Decode(&ev)
		require.NoError(t, err)
		assert.NotEmpty(t, ev.Kind)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewNotifier(config.AlertConfig{WebhookURL: ts.URL})

	sent := n.Send(context.Background(),
		RunFailure(nil, assert.AnError),
		LedgerDrift("drift", nil),
	)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestNotifier_Send_EmptyURL(t *testing.T) {
	n := NewNotifier(config.AlertConfig{})

	sent := n.Send(context.Background(), RunFailure(nil, assert.AnError))
	assert.Equal(t, 0, sent)
}

func TestNotifier_Send_NoEvents(t *testing.T) {
	n := NewNotifier(config.AlertConfig{WebhookURL: "http://example.com"})

	sent := n.Send(context.Background())
	assert.Equal(t, 0, sent)
}

func TestNotifier_Send_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	n := NewNotifier(config.AlertConfig{WebhookURL: ts.URL})

	sent := n.Send(context.Background(), RunFailure(nil, assert.AnError))
	assert.Equal(t, 0, sent)
}
