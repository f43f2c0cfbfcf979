package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/prospector/internal/lead"
)

// Email is the persisted subject/body payload for a run. It is written
// as an artifact before any send attempt so re-invocations deliver the
// exact bytes the run generated.
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FormatEmail renders the selected leads as a plain-text email. The
// output is a pure function of its inputs: re-formatting a run's
// artifacts yields byte-identical subject and body.
func FormatEmail(metro, date string, selected []lead.Candidate, enrichments []lead.Enrichment) Email {
	byFP := make(map[string]lead.Enrichment, len(enrichments))
	for _, e := range enrichments {
		byFP[e.Fingerprint] = e
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New business leads for %s, found %s.\n", metro, date)

	if len(selected) == 0 {
		b.WriteString("\nNo fresh leads this run. Every candidate matched a previously sent lead.\n")
		return Email{
			Subject: fmt.Sprintf("0 new %s leads — %s", metro, date),
			Body:    b.String(),
		}
	}

	for i, c := range selected {
		fmt.Fprintf(&b, "\n%d. %s (score %d)\n", i+1, c.Title, c.Score)
		fmt.Fprintf(&b, "   %s\n", c.URL)
		if c.Host != "" {
			fmt.Fprintf(&b, "   host: %s\n", c.Host)
		}
		if len(c.Reasons) > 0 {
			fmt.Fprintf(&b, "   signals: %s\n", strings.Join(c.Reasons, "; "))
		}

		if e, ok := byFP[c.Fingerprint]; ok {
			if e.Name != "" && e.Name != c.Title {
				fmt.Fprintf(&b, "   name: %s\n", e.Name)
			}
			if e.MainPhone != "" {
				fmt.Fprintf(&b, "   phone: %s\n", e.MainPhone)
			}
			if e.Address != "" {
				fmt.Fprintf(&b, "   address: %s\n", e.Address)
			}
			if e.Website != "" && e.Website != c.URL {
				fmt.Fprintf(&b, "   website: %s\n", e.Website)
			}
			if e.Description != "" {
				fmt.Fprintf(&b, "   about: %s\n", e.Description)
			}
			if e.Reason != "" {
				fmt.Fprintf(&b, "   why: %s\n", e.Reason)
			}
		}
	}

	return Email{
		Subject: fmt.Sprintf("%d new %s leads — %s", len(selected), metro, date),
		Body:    b.String(),
	}
}
