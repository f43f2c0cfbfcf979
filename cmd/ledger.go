package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the sent-leads ledger",
}

// -- ledger stats --

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the sent-ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ldg, err := ledger.Load(cfg.Data.LedgerPath())
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		stats := ldg.Stats()

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Ledger:\t%s\n", ldg.Path())
		_, _ = fmt.Fprintf(w, "Entries:\t%d\n", stats.Total)
		_, _ = fmt.Fprintf(w, "Duplicate fingerprints:\t%d\n", stats.DuplicateFingerprints)
		_, _ = fmt.Fprintf(w, "Malformed lines:\t%d\n", stats.MalformedLines)
		if stats.OldestEntry != nil {
			_, _ = fmt.Fprintf(w, "Oldest entry:\t%s\n", stats.OldestEntry.Format("2006-01-02"))
		}
		if stats.NewestEntry != nil {
			_, _ = fmt.Fprintf(w, "Newest entry:\t%s\n", stats.NewestEntry.Format("2006-01-02"))
		}
		_ = w.Flush()

		if len(stats.PerMetro) > 0 {
			fmt.Println()
			mw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(mw, "METRO\tLEADS")
			for metro, n := range stats.PerMetro {
				_, _ = fmt.Fprintf(mw, "%s\t%d\n", metro, n)
			}
			_ = mw.Flush()
		}
		return nil
	},
}

// -- ledger verify --

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check ledger entries for internal consistency",
	Long:  "Recomputes each entry's fingerprint from its host and title and reports mismatches, alongside malformed-line and duplicate counts. Read-only.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ldg, err := ledger.Load(cfg.Data.LedgerPath())
		if err != nil {
			return err
		}

		blank, mismatched := verifyEntries(ldg.Entries())
		for _, e := range mismatched {
			fmt.Fprintf(os.Stderr, "fingerprint mismatch: %s (%s)\n", e.Fingerprint, e.Host)
		}

		stats := ldg.Stats()
		fmt.Printf("entries=%d malformed=%d duplicates=%d blank=%d mismatches=%d\n",
			stats.Total, stats.MalformedLines, stats.DuplicateFingerprints, blank, len(mismatched))

		if len(mismatched) > 0 || blank > 0 {
			return eris.Errorf("ledger verify: %d mismatched, %d blank fingerprints", len(mismatched), blank)
		}
		return nil
	},
}

// verifyEntries recomputes each entry's fingerprint. Entries without a
// host or title predate the fields and cannot be recomputed; they are
// skipped, not flagged.
func verifyEntries(entries []ledger.Entry) (blank int, mismatched []ledger.Entry) {
	for _, e := range entries {
		if e.Fingerprint == "" {
			blank++
			continue
		}
		if e.Host == "" || e.Title == "" {
			continue
		}
		if lead.Fingerprint(e.Host, e.Title) != e.Fingerprint {
			mismatched = append(mismatched, e)
		}
	}
	return blank, mismatched
}

func init() {
	ledgerStatsCmd.Flags().Bool("json", false, "emit stats as JSON")

	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	rootCmd.AddCommand(ledgerCmd)
}
