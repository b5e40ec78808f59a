package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "moviesync",
	Short: "Incremental movie metadata collector",
	Long:  "Discovers movies from TMDB, refreshes TMDB and OMDb metadata on an age-based cadence, freezes stable catalog entries and upserts everything into the analytical store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
