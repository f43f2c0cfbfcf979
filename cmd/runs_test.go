package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospector/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.RunSummary{
		{
			RunID:               "a1b2c3d4e5f6a7b8",
			Metro:               "Denver-Aurora-Lakewood, CO",
			Status:              "COMMITTED",
			SelectedCount:       5,
			SentHistoryAppended: 5,
			CreatedAt:           now,
		},
		{
			RunID:         "f6e5d4c3b2a1f6e5",
			Metro:         "Boulder, CO",
			Status:        "GENERATED",
			SelectedCount: 3,
			CreatedAt:     now.Add(-24 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "RUN_ID")
	assert.Contains(t, output, "METRO")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "a1b2c3d4e5f6")
	assert.Contains(t, output, "COMMITTED")
	assert.Contains(t, output, "Boulder, CO")
	assert.Contains(t, output, "GENERATED")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "Denver-Aurora-Lakewood, CO")
}

func TestComputeRunStats(t *testing.T) {
	runs := []store.RunSummary{
		{Status: "COMMITTED", SelectedCount: 5, SentHistoryAppended: 5},
		{Status: "COMMITTED", SelectedCount: 3, SentHistoryAppended: 3},
		{Status: "SENT", SelectedCount: 4},
		{Status: "GENERATED", SelectedCount: 2},
		{Status: "STARTED"},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Committed)
	assert.Equal(t, 1, s.Sent)
	assert.Equal(t, 1, s.Generated)
	assert.Equal(t, 1, s.Started)
	assert.Equal(t, 14, s.Selected)
	assert.Equal(t, 8, s.Appended)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:     4,
		Committed: 2,
		Sent:      1,
		Generated: 1,
		Selected:  12,
		Appended:  8,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Committed:")
	assert.Contains(t, output, "Sent (uncommitted):")
	assert.Contains(t, output, "12")
	assert.Contains(t, output, "8")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "a1b2c3d4e5f6", truncateID("a1b2c3d4e5f6a7b8c9d0"))
	assert.Equal(t, "short", truncateID("short"))
}
