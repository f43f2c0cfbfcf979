package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/ledger"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/internal/runstate"
)

func TestCollectSince_JoinsEnrichment(t *testing.T) {
	root := t.TempDir()
	rec, err := runstate.Create(filepath.Join(root, "runs"), "Denver", "seed", time.Now())
	require.NoError(t, err)
	require.NoError(t, runstate.WriteArtifact(rec.Dir, runstate.EnrichmentsFile, []lead.Enrichment{
		{Fingerprint: "aaaa111122223333", Name: "Summit Plumbing LLC", MainPhone: "(303) 555-0147"},
	}))

	ldg, err := ledger.Load(filepath.Join(root, "sent_ledger.jsonl"))
	require.NoError(t, err)
	_, err = ldg.Append([]ledger.Entry{
		{
			Timestamp:   time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
			Fingerprint: "aaaa111122223333",
			Title:       "Summit Plumbing",
			URL:         "https://summit.example.com",
			Host:        "summit.example.com",
			Metro:       "Denver",
			RunID:       rec.RunID,
			RunDir:      rec.Dir,
		},
		{
			Timestamp:   time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
			Fingerprint: "bbbb444455556666",
			Title:       "Ridgeline HVAC",
			URL:         "https://ridgeline.example.com",
			Host:        "ridgeline.example.com",
			Metro:       "Denver",
			RunID:       rec.RunID,
			RunDir:      rec.Dir,
		},
	})
	require.NoError(t, err)

	leads := CollectSince(ldg, time.Time{})
	require.Len(t, leads, 2)

	assert.Equal(t, "Summit Plumbing LLC", leads[0].Name)
	assert.Equal(t, "(303) 555-0147", leads[0].Phone)
	assert.Empty(t, leads[1].Name, "no enrichment recorded for the second lead")
	assert.Equal(t, "Ridgeline HVAC", leads[1].Title)
}

func TestCollectSince_FiltersByTimestamp(t *testing.T) {
	ldg, err := ledger.Load(filepath.Join(t.TempDir(), "sent_ledger.jsonl"))
	require.NoError(t, err)
	_, err = ldg.Append([]ledger.Entry{
		{Timestamp: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Fingerprint: "old0000000000000"},
		{Timestamp: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), Fingerprint: "new0000000000000"},
	})
	require.NoError(t, err)

	leads := CollectSince(ldg, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, leads, 1)
	assert.Equal(t, "new0000000000000", leads[0].Fingerprint)
}

func TestCollectSince_MissingRunDirDegradesToLedgerFields(t *testing.T) {
	ldg, err := ledger.Load(filepath.Join(t.TempDir(), "sent_ledger.jsonl"))
	require.NoError(t, err)
	_, err = ldg.Append([]ledger.Entry{{
		Timestamp:   time.Now().UTC(),
		Fingerprint: "aaaa111122223333",
		Title:       "Summit Plumbing",
		RunDir:      runstate.RunDir("/gone/2025-06-02/run-rotated-away"),
	}})
	require.NoError(t, err)

	leads := CollectSince(ldg, time.Time{})
	require.Len(t, leads, 1)
	assert.Equal(t, "Summit Plumbing", leads[0].Title)
	assert.Empty(t, leads[0].Name)
}

func TestCollectSince_DeduplicatesFingerprints(t *testing.T) {
	ldg, err := ledger.Load(filepath.Join(t.TempDir(), "sent_ledger.jsonl"))
	require.NoError(t, err)
	_, err = ldg.Append([]ledger.Entry{
		{Timestamp: time.Now().UTC(), Fingerprint: "aaaa111122223333", Title: "First"},
		{Timestamp: time.Now().UTC(), Fingerprint: "aaaa111122223333", Title: "Second"},
	})
	require.NoError(t, err)

	leads := CollectSince(ldg, time.Time{})
	require.Len(t, leads, 1)
	assert.Equal(t, "First", leads[0].Title)
}

func TestDisplayNameAndWebsite(t *testing.T) {
	l := exportLead("aaaa111122223333", "Summit Plumbing", "summit.example.com")
	assert.Equal(t, "Summit Plumbing", displayName(l))
	assert.Equal(t, "https://summit.example.com", website(l))

	l.Name = "Summit Plumbing LLC"
	l.Website = "https://summitplumbing.co"
	assert.Equal(t, "Summit Plumbing LLC", displayName(l))
	assert.Equal(t, "https://summitplumbing.co", website(l))
}
