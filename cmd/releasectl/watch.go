package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dceres/releasectl/internal/observability"
	"github.com/dceres/releasectl/internal/release"
	"github.com/dceres/releasectl/internal/trigger"
)

// runWatch blocks running scheduled health checks until signal shutdown.
func runWatch(cmd *cobra.Command, configPath string) error {
	orch, cfg, err := buildOrchestrator(configPath)
	if err != nil {
		return err
	}
	if cfg.Watch.Schedule == "" {
		return fmt.Errorf("watch requires [watch] schedule in %s", configPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	var last *release.Report

	sched := trigger.NewScheduler()
	err = sched.Add(cfg.Watch.Schedule, func(trig trigger.Trigger) {
		report := orch.Run(ctx, trig)
		if err := report.Write(cfg.ReportDir); err != nil {
			log.Error().Err(err).Msg("report write failed")
		}
		mu.Lock()
		last = &report
		mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("watch schedule %q: %w", cfg.Watch.Schedule, err)
	}
	sched.Start()
	defer sched.Stop()

	var server *http.Server
	if cfg.Watch.StatusAddr != "" {
		router := observability.NewStatusRouter(func() (any, bool) {
			mu.Lock()
			defer mu.Unlock()
			if last == nil {
				return nil, false
			}
			return *last, true
		})
		server = &http.Server{Addr: cfg.Watch.StatusAddr, Handler: router}
		go func() {
			log.Info().Str("addr", cfg.Watch.StatusAddr).Msg("status server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	log.Info().Str("schedule", cfg.Watch.Schedule).Msg("watching")
	<-ctx.Done()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return nil
}
