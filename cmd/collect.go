package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/collect"
	"github.com/sells-group/moviesync/internal/config"
	"github.com/sells-group/moviesync/internal/model"
)

var (
	collectStartYear    int
	collectEndYear      int
	collectMaxPages     int
	collectMinVotes     int
	collectRefreshLimit int
	collectRefreshOnly  bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle: discovery then refresh",
	Long:  "Discovers movies released in the year range, then refreshes every movie whose TMDB or OMDb data is stale and freezes stable ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cycleOptions(cfg, time.Now().UTC().Year())
		if collectRefreshOnly {
			opts.StartYear, opts.EndYear = 0, 0
		}
		return runCycle(cmd, "collect", opts)
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover movies from TMDB without refreshing details",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cycleOptions(cfg, collectStartYear)
		opts.SkipRefresh = true
		return runCycle(cmd, "discover", opts)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh stale movies without discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cycleOptions(cfg, 0)
		opts.StartYear, opts.EndYear = 0, 0
		return runCycle(cmd, "collect", opts)
	},
}

// cycleOptions merges the command flags over config. defaultStart is used
// when --start-year is not given.
func cycleOptions(c *config.Config, defaultStart int) collect.Options {
	opts := collect.Options{
		StartYear:    collectStartYear,
		EndYear:      collectEndYear,
		MaxPages:     collectMaxPages,
		MinVoteCount: collectMinVotes,
		RefreshLimit: collectRefreshLimit,
	}
	if opts.StartYear == 0 {
		opts.StartYear = defaultStart
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = c.Discovery.MaxPages
	}
	if opts.MinVoteCount == 0 {
		opts.MinVoteCount = c.Discovery.MinVoteCount
	}
	if opts.RefreshLimit == 0 {
		opts.RefreshLimit = c.Refresh.Limit
	}
	return opts
}

func runCycle(cmd *cobra.Command, mode string, opts collect.Options) error {
	if opts.EndYear != 0 && opts.EndYear < opts.StartYear {
		return eris.Errorf("end year %d is before start year %d", opts.EndYear, opts.StartYear)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initCollect(ctx, mode)
	if err != nil {
		return err
	}
	defer env.Close()

	stats, err := env.Orchestrator.Run(ctx, opts)
	printStats(cmd, stats)
	if err != nil {
		return eris.Wrap(err, mode)
	}
	zap.L().Info("cycle finished", zap.String("mode", mode))
	return nil
}

func printStats(cmd *cobra.Command, s model.CycleStats) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(),
		"discovered=%d tmdb_updated=%d omdb_updated=%d frozen=%d\n",
		s.Discovered, s.SourceAUpdated, s.SourceBUpdated, s.Frozen)
}

func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&collectStartYear, "start-year", 0, "first release year to discover (default current year)")
	cmd.Flags().IntVar(&collectEndYear, "end-year", 0, "last release year to discover (default start year)")
	cmd.Flags().IntVar(&collectMaxPages, "max-pages", 0, "max listing pages per year (default from config, 0 = all)")
	cmd.Flags().IntVar(&collectMinVotes, "min-votes", 0, "minimum TMDB vote count (default from config)")
}

func init() {
	addDiscoveryFlags(collectCmd)
	collectCmd.Flags().IntVar(&collectRefreshLimit, "refresh-limit", 0, "max movies to refresh (default from config)")
	collectCmd.Flags().BoolVar(&collectRefreshOnly, "refresh-only", false, "skip discovery")

	addDiscoveryFlags(discoverCmd)
	_ = discoverCmd.MarkFlagRequired("start-year")

	refreshCmd.Flags().IntVar(&collectRefreshLimit, "limit", 0, "max movies to refresh (default from config)")

	rootCmd.AddCommand(collectCmd, discoverCmd, refreshCmd)
}
