package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lalitcap23/defess-v3/internal/db"
)

func healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database and Solana connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
			defer cancel()

			out := map[string]any{}
			healthy := true

			conn, err := db.Open(cfg.DB)
			if err == nil {
				err = db.Ping(conn)
				_ = db.Close(conn)
			}
			out["database"] = map[string]any{"ok": err == nil, "error": errString(err)}
			healthy = healthy && err == nil

			chain, err := newChainClient(cfg, logger)
			if err != nil {
				out["solana"] = map[string]any{"error": err.Error()}
				healthy = false
			} else {
				h := chain.Health(ctx)
				out["solana"] = h
				healthy = healthy && h.Connected && h.ProgramExists
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !healthy {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
