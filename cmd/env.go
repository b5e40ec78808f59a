package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/collect"
	"github.com/sells-group/moviesync/internal/config"
	"github.com/sells-group/moviesync/internal/fetcher"
	"github.com/sells-group/moviesync/internal/refresh"
	"github.com/sells-group/moviesync/internal/resilience"
	"github.com/sells-group/moviesync/internal/source"
	"github.com/sells-group/moviesync/internal/store"
	"github.com/sells-group/moviesync/pkg/omdb"
	"github.com/sells-group/moviesync/pkg/tmdb"
)

// collectEnv holds the store and the orchestrator needed by the collect,
// discover, refresh and serve commands.
type collectEnv struct {
	Store        store.Gateway
	Policy       refresh.Policy
	Orchestrator *collect.Orchestrator
}

// Close releases resources held by the environment.
func (e *collectEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// openStore connects to the configured store and applies pending migrations.
func openStore(ctx context.Context) (store.Gateway, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	g, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := g.Migrate(ctx); err != nil {
		_ = g.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return g, nil
}

// loadPolicy reads the refresh policy file and applies the freeze settings
// from config over it.
func loadPolicy(c *config.Config) (refresh.Policy, error) {
	p, err := refresh.LoadPolicy(c.Refresh.PolicyFile)
	if err != nil {
		return refresh.Policy{}, err
	}
	if c.Refresh.Freeze.Mode != "" {
		p.Freeze.Mode = refresh.FreezeMode(c.Refresh.Freeze.Mode)
	}
	if c.Refresh.Freeze.MinAgeDays > 0 {
		p.Freeze.MinAgeDays = c.Refresh.Freeze.MinAgeDays
	}
	if c.Refresh.Freeze.StableCycles > 0 {
		p.Freeze.StableCycles = c.Refresh.Freeze.StableCycles
	}
	if err := p.Validate(); err != nil {
		return refresh.Policy{}, eris.Wrap(err, "refresh policy")
	}
	return p, nil
}

// newExecutor builds the rate-limited executor for one source.
func newExecutor(name string, src config.SourceConfig, c *config.Config) *fetcher.Executor {
	circuit := resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
	circuit.OnStateChange = resilience.BreakerLogger(name)
	return fetcher.NewExecutor(fetcher.ExecutorConfig{
		Name:              name,
		RequestsPerSecond: src.RequestsPerSecond,
		MaxConcurrent:     src.MaxConcurrent,
		Retry: resilience.FromRetryConfig(
			c.Retry.MaxAttempts, c.Retry.BaseDelayMs, c.Retry.MaxDelayMs, c.Retry.JitterFraction,
		),
		Circuit: circuit,
	})
}

func httpClient(src config.SourceConfig) *http.Client {
	timeout := time.Duration(src.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// initCollect validates config for mode, opens the store and wires both
// sources into an orchestrator. Callers should defer env.Close().
func initCollect(ctx context.Context, mode string, opts ...collect.Option) (*collectEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	policy, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	g, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	tmdbClient := tmdb.NewClient(cfg.TMDB.Key,
		tmdb.WithBaseURL(cfg.TMDB.BaseURL),
		tmdb.WithHTTPClient(httpClient(cfg.TMDB)),
	)
	omdbClient := omdb.NewClient(cfg.OMDB.Key,
		omdb.WithBaseURL(cfg.OMDB.BaseURL),
		omdb.WithHTTPClient(httpClient(cfg.OMDB)),
	)

	primary := source.NewTMDB(tmdbClient, newExecutor("tmdb", cfg.TMDB, cfg))
	secondary := source.NewOMDB(omdbClient, newExecutor("omdb", cfg.OMDB, cfg))

	return &collectEnv{
		Store:        g,
		Policy:       policy,
		Orchestrator: collect.New(g, primary, secondary, policy, opts...),
	}, nil
}
