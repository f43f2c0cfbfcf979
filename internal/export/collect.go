// Package export pushes committed leads from the sent-ledger into
// external CRMs. Exports read run artifacts and the ledger, never the
// other way around: a failed or repeated export cannot disturb a run,
// and every push is idempotent per fingerprint.
package export

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/ledger"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/runstate"
)

// Lead is one committed lead flattened for export: the ledger entry
// joined with whatever enrichment its run directory still holds.
type Lead struct {
	Fingerprint string
	Title       string
	URL         string
	Host        string
	Metro       string
	RunID       string
	CommittedAt time.Time

	// Enrichment fields, empty when the run shipped un-enriched or its
	// directory has been rotated away.
	Name        string
	Phone       string
	Address     string
	Website     string
	Description string
}

// Result tallies one export invocation.
type Result struct {
	Created int
	Updated int
	Failed  int
}

// CollectSince flattens ledger entries committed at or after since.
// Enrichment artifacts are joined best-effort: a missing or unreadable
// run directory degrades the lead to its ledger fields, never fails the
// collection. Duplicate fingerprints keep their first occurrence.
func CollectSince(ldg *ledger.Ledger, since time.Time) []Lead {
	cache := make(map[runstate.RunDir]map[string]lead.Enrichment)
	seen := make(map[string]struct{})

	var out []Lead
	for _, e := range ldg.Entries() {
		if e.Timestamp.Before(since) {
			continue
		}
		if _, dup := seen[e.Fingerprint]; dup {
			continue
		}
		seen[e.Fingerprint] = struct{}{}

		l := Lead{
			Fingerprint: e.Fingerprint,
			Title:       e.Title,
			URL:         e.URL,
			Host:        e.Host,
			Metro:       e.Metro,
			RunID:       e.RunID,
			CommittedAt: e.Timestamp,
		}

		if e.RunDir != "" {
			enr, ok := cache[e.RunDir]
			if !ok {
				var err error
				enr, err = pipeline.LoadEnrichments(e.RunDir)
				if err != nil {
					zap.L().Warn("export: enrichment artifact unreadable",
						zap.String("dir", string(e.RunDir)),
						zap.Error(err),
					)
					enr = nil
				}
				cache[e.RunDir] = enr
			}
			if v, found := enr[e.Fingerprint]; found {
				l.Name = v.Name
				l.Phone = v.MainPhone
				l.Address = v.Address
				l.Website = v.Website
				l.Description = v.Description
			}
		}

		out = append(out, l)
	}
	return out
}

// displayName prefers the enriched business name over the raw search
// hit title.
func displayName(l Lead) string {
	if l.Name != "" {
		return l.Name
	}
	return l.Title
}

// website prefers the enriched canonical site over the search hit URL.
func website(l Lead) string {
	if l.Website != "" {
		return l.Website
	}
	return l.URL
}
