package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-sheet-sync/internal/datanorm"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <campaign name>...",
		Short: "Show the keyword and match type derived from campaign names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CAMPAIGN\tKEYWORD\tMATCH_TYPE\tRULE")
			for _, name := range args {
				c := datanorm.Classify(name)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, orDash(c.KeywordValue()), orDash(string(c.MatchType)), c.Rule)
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
