package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lalitcap23/defess-v3/internal/period"
	"github.com/lalitcap23/defess-v3/internal/service"
)

func processPeriodCommand() *cobra.Command {
	var periodStart int64
	cmd := &cobra.Command{
		Use:   "process-period",
		Short: "Process the previous period once, or the one given by --period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var res service.Result
			if cmd.Flags().Changed("period") {
				p, err := period.Parse(periodStart)
				if err != nil {
					return err
				}
				res = a.processor.ProcessPeriod(cmd.Context(), p)
			} else {
				res = a.processor.ProcessPreviousPeriod(cmd.Context())
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Kind.Failure() {
				return errors.New(res.Error)
			}
			if !res.Success {
				fmt.Fprintln(os.Stderr, res.Message)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&periodStart, "period", 0, "unix start of the period to process (must be 30-minute aligned)")
	return cmd
}
