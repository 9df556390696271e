package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
	"github.com/ignite/campaign-sheet-sync/internal/report"
)

func newReportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report <file.csv>...",
		Short: "Write the unmatched-campaign workbook without touching the spreadsheet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readInputs(args)
			if err != nil {
				return err
			}
			batch, err := datanorm.Assemble(inputs...)
			if err != nil {
				return err
			}
			if err := datanorm.Normalize(batch); err != nil {
				return err
			}
			unmatched := datanorm.Unmatched(batch)

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.WriteUnmatchedXLSX(f, unmatched); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d rows unmatched, wrote %s\n", len(unmatched), batch.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", report.FileName, "output .xlsx path")
	return cmd
}
