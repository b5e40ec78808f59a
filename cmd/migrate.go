package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer g.Close() //nolint:errcheck

		zap.L().Info("migrations applied",
			zap.String("driver", string(g.Dialect())),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
