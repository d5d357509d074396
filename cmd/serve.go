package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/api"
	"github.com/sells-group/uw-workbench/internal/scheduler"
)

var (
	servePort        int
	serveNoScheduler bool
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API and background scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		server := api.New(env.Service, env.Store, env.Tables, api.Options{
			APIKey:         cfg.Server.APIKey,
			Timeout:        time.Duration(cfg.Server.TimeoutSecs) * time.Second,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		var sched *scheduler.Scheduler
		if !serveNoScheduler {
			sched, err = scheduler.New(env.Service, env.Store, schedulerConfig())
			if err != nil {
				return err
			}
			sched.Start()
			zap.L().Info("scheduler started", zap.Strings("jobs", sched.Jobs()))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			if sched != nil {
				if err := sched.Stop(shutdownCtx); err != nil {
					zap.L().Warn("scheduler shutdown", zap.Error(err))
				}
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-done
			return eris.Wrap(err, "server listen")
		}
		<-done

		return nil
	},
}

func schedulerConfig() scheduler.Config {
	return scheduler.Config{
		ReminderSchedule:  cfg.Scheduler.ReminderSchedule,
		ReminderAfter:     time.Duration(cfg.Scheduler.ReminderAfterHours) * time.Hour,
		SyncRetrySchedule: cfg.Scheduler.SyncRetrySchedule,
		SyncRetryBatch:    cfg.Scheduler.SyncRetryBatch,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "serve the API without background jobs")
	rootCmd.AddCommand(serveCmd)
}
