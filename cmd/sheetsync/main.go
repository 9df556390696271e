// Command sheetsync normalizes campaign CSV exports and appends them to the
// configured Google Sheets worksheet.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath, logLevel string

	root := &cobra.Command{
		Use:   "sheetsync",
		Short: "Normalize campaign CSV exports and append them to Google Sheets",
		Long: `sheetsync reads one or more campaign CSV exports, derives Keyword,
Match_Type and CVR for every row, and appends the batch below the last
occupied row of the configured worksheet.

Rows the classifier cannot place are listed in an unmatched report.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetOutput(cmd.ErrOrStderr())
			if logLevel != "" {
				logger.SetLevel(logger.ParseLevel(logLevel))
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.LoadFromEnv(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel == "" {
			logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
		}
		return cfg, nil
	}

	root.AddCommand(newAppendCmd(loadConfig), newClassifyCmd(), newReportCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
