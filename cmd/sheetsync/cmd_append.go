package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-sheet-sync/internal/app"
	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/service/ingest"
)

func newAppendCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		dryRun       bool
		credsPath    string
		unmatchedOut string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "append <file.csv>...",
		Short: "Normalize CSV files and append them to the worksheet",
		Long: `Reads the files in the order given, normalizes every row and appends
the batch to the configured worksheet. With --dry-run nothing is written
to the spreadsheet.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !dryRun {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			inputs, err := readInputs(args)
			if err != nil {
				return err
			}
			if credsPath != "" {
				// A key given on the command line is trusted like a configured file.
				cfg.Credentials.File = credsPath
			}

			pipeline, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			res, procErr := pipeline.Service.Process(cmd.Context(), inputs, ingest.Options{DryRun: dryRun})
			if res != nil {
				if unmatchedOut != "" {
					if err := os.WriteFile(unmatchedOut, res.Report, 0644); err != nil {
						return fmt.Errorf("write unmatched report: %w", err)
					}
				}
				if err := printResult(cmd, res, asJSON); err != nil {
					return err
				}
			}
			return procErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "normalize and report without writing to the spreadsheet")
	cmd.Flags().StringVar(&credsPath, "credentials", "", "service account key file (overrides config)")
	cmd.Flags().StringVarP(&unmatchedOut, "unmatched-out", "o", "", "write the unmatched report to this .xlsx path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the batch result as JSON")
	return cmd
}

func readInputs(paths []string) ([]datanorm.Input, error) {
	inputs := make([]datanorm.Input, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, datanorm.Input{Name: filepath.Base(p), Data: data})
	}
	return inputs, nil
}

func printResult(cmd *cobra.Command, res *ingest.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "batch %s: %d rows from %d files, %d unmatched\n", res.BatchID, res.Rows, len(res.Files), res.UnmatchedCount)
	for _, u := range res.Unmatched {
		fmt.Fprintf(out, "  unmatched %s:%d %s\n", u.Source, u.Line, u.Campaign)
	}
	switch {
	case res.DryRun:
		fmt.Fprintln(out, "dry run: nothing written")
	case res.Append != nil:
		fmt.Fprintf(out, "appended %d rows at %s\n", res.Append.RowsWritten, res.Append.Range)
	}
	if res.ReportLocation != "" {
		fmt.Fprintf(out, "unmatched report: %s\n", res.ReportLocation)
	}
	return nil
}
