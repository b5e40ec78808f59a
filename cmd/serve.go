package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/collect"
	"github.com/sells-group/moviesync/internal/monitoring"
	"github.com/sells-group/moviesync/internal/store"
)

var (
	servePort     int
	serveInterval int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server with an optional cycle scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := monitoring.NewMetrics(reg)

		env, err := initCollect(ctx, "serve", collect.WithObserver(metrics))
		if err != nil {
			return err
		}
		defer env.Close()

		runLog := store.NewRunLog(env.Store)
		collector := monitoring.NewCollector(env.Store, runLog, env.Policy)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), metrics, cfg.Monitoring)
		go checker.Run(ctx)

		srvState := newCollectServer(ctx, env.Orchestrator, collector, runLog,
			func() collect.Options { return cycleOptions(cfg, time.Now().UTC().Year()) },
			cfg.Monitoring.LookbackWindowHours,
		)

		interval := serveInterval
		if interval == 0 {
			interval = cfg.Server.ScheduleIntervalMins
		}
		if interval > 0 {
			go srvState.schedule(ctx, time.Duration(interval)*time.Minute)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvState.router(cfg.Server.AllowedOrigins, metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Cycles observe ctx; wait for the running one to record its outcome.
		srvState.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().IntVar(&serveInterval, "interval", 0, "minutes between scheduled cycles (default from config, 0 = off)")
	rootCmd.AddCommand(serveCmd)
}
