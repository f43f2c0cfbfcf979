package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/fetcher"
	"github.com/sells-group/prospector/internal/rotation"
)

var metrosCmd = &cobra.Command{
	Use:   "metros",
	Short: "Manage the metro rotation",
}

// -- metros show --

var metrosShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the rotation order and cursor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		state, err := rotation.Load(cfg.Data.RotationPath())
		if err != nil {
			return err
		}
		if len(state.Metros) == 0 {
			fmt.Fprintln(os.Stderr, "Rotation is empty. Seed it with `prospector metros import`.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for i, m := range state.Metros {
			marker := ""
			if i == state.Cursor {
				marker = "→ next"
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i, m, marker)
		}
		_ = w.Flush()
		return nil
	},
}

// -- metros import --

var (
	metrosFromCensus bool
	metrosCensusURL  string
	metrosFile       string
)

var metrosImportCmd = &cobra.Command{
	Use:   "import [METRO ...]",
	Short: "Seed or replace the rotation metro list",
	Long:  "Replaces the rotation's metro list from explicit arguments, a local CBSA delineation workbook (--file), or the Census Bureau's published one (--census). The cursor is preserved when the current metro survives the reload.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var metros []string
		switch {
		case metrosFromCensus:
			f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
			titles, err := fetcher.FetchMetros(ctx, f, metrosCensusURL)
			if err != nil {
				return err
			}
			metros = titles
		case metrosFile != "":
			parsed, err := fetcher.ParseDelineation(metrosFile)
			if err != nil {
				return err
			}
			for _, m := range parsed {
				metros = append(metros, m.Title)
			}
		case len(args) > 0:
			metros = args
		default:
			return eris.New("metros import: provide metro names, --file, or --census")
		}

		state, err := rotation.Reseed(cfg.Data.RotationPath(), metros)
		if err != nil {
			return err
		}

		zap.L().Info("rotation reseeded",
			zap.Int("metros", len(state.Metros)),
			zap.String("next", state.Current()),
		)
		fmt.Printf("Rotation now has %d metros; next up: %s\n", len(state.Metros), state.Current())
		return nil
	},
}

func init() {
	metrosImportCmd.Flags().BoolVar(&metrosFromCensus, "census", false, "download the Census CBSA delineation file")
	metrosImportCmd.Flags().StringVar(&metrosCensusURL, "census-url", "", "override the delineation file URL")
	metrosImportCmd.Flags().StringVar(&metrosFile, "file", "", "local CBSA delineation .xlsx")

	metrosCmd.AddCommand(metrosShowCmd)
	metrosCmd.AddCommand(metrosImportCmd)
	rootCmd.AddCommand(metrosCmd)
}
