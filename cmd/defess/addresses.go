package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/lalitcap23/defess-v3/internal/period"
)

func addressesCommand() *cobra.Command {
	var (
		periodStart int64
		postID      string
	)
	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Print the program-derived addresses for a period and post",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			chain, err := newChainClient(cfg, logger)
			if err != nil {
				return err
			}
			var p *int64
			if cmd.Flags().Changed("period") {
				if _, err := period.Parse(periodStart); err != nil {
					return err
				}
				p = &periodStart
			}
			addrs, err := chain.DeriveAddresses(p, postID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"program_id": chain.ProgramID().String(),
				"addresses":  addrs,
			})
		},
	}
	cmd.Flags().Int64Var(&periodStart, "period", 0, "unix start of the period")
	cmd.Flags().StringVar(&postID, "post", "", "post id")
	return cmd
}
