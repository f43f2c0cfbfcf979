package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/export"
	"github.com/sells-group/prospector/internal/ledger"
)

var exportSince time.Duration

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push committed leads to an external CRM",
	Long:  "Reads the sent-ledger and mirrors committed leads into Notion or Salesforce. Idempotent per fingerprint: existing records are updated, never duplicated.",
}

var exportNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Export leads to the Notion leads database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := initNotion()
		if err != nil {
			return err
		}

		leads, err := collectExportLeads()
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			fmt.Println("Nothing to export.")
			return nil
		}

		res, err := export.NewNotion(client, cfg.Notion.LeadDB).Export(ctx, leads)
		if res != nil {
			fmt.Printf("notion: %d created, %d updated, %d failed\n", res.Created, res.Updated, res.Failed)
		}
		return err
	},
}

var exportSalesforceCmd = &cobra.Command{
	Use:   "salesforce",
	Short: "Export leads as Salesforce prospect Accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := initSalesforce()
		if err != nil {
			return err
		}

		leads, err := collectExportLeads()
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			fmt.Println("Nothing to export.")
			return nil
		}

		res, err := export.NewSalesforce(client).Export(ctx, leads)
		if res != nil {
			fmt.Printf("salesforce: %d created, %d updated, %d failed\n", res.Created, res.Updated, res.Failed)
		}
		return err
	},
}

// collectExportLeads loads the ledger and flattens it to the export
// window.
func collectExportLeads() ([]export.Lead, error) {
	ldg, err := ledger.Load(cfg.Data.LedgerPath())
	if err != nil {
		return nil, err
	}

	var since time.Time
	if exportSince > 0 {
		since = time.Now().Add(-exportSince)
	}

	leads := export.CollectSince(ldg, since)
	zap.L().Info("export window collected",
		zap.Int("leads", len(leads)),
		zap.Int("ledger_entries", ldg.Len()),
	)
	return leads, nil
}

func init() {
	exportCmd.PersistentFlags().DurationVar(&exportSince, "since", 0, "only export leads committed within this window (default: all)")

	exportCmd.AddCommand(exportNotionCmd)
	exportCmd.AddCommand(exportSalesforceCmd)
	rootCmd.AddCommand(exportCmd)
}
