// Command teamarr bootstraps the process: load config, connect the store,
// wire the provider stack and generation pipeline, start the background
// scheduler, and serve the admin HTTP surface until signaled to stop.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/api"
	"github.com/Pharaoh-Labs/teamarr/internal/config"
	"github.com/Pharaoh-Labs/teamarr/internal/hostapi"
	"github.com/Pharaoh-Labs/teamarr/internal/httpclient"
	"github.com/Pharaoh-Labs/teamarr/internal/logger"
	"github.com/Pharaoh-Labs/teamarr/internal/providers"
	"github.com/Pharaoh-Labs/teamarr/internal/scheduler"
	"github.com/Pharaoh-Labs/teamarr/internal/service"
	"github.com/Pharaoh-Labs/teamarr/internal/sportsdata"
	"github.com/Pharaoh-Labs/teamarr/internal/storage"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("storage open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("database connected")

	httpOpts := httpclient.DefaultOptions()
	httpOpts.Timeout = cfg.ProviderTimeout
	providerClient := httpclient.New(httpOpts)

	sports := sportsdata.New(
		providers.NewESPNProvider(providerClient),
	)

	var host *hostapi.Client
	if cfg.HostBaseURL != "" {
		host = hostapi.New(cfg.HostBaseURL, cfg.HostUsername, cfg.HostPassword)
	}

	svc := service.New(store, sports, host, cfg.DataDir, cfg.PublishedEPGPath)

	mainCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	groupRefresh := scheduler.New(cfg.SchedulerInterval, func(taskCtx context.Context, now time.Time) {
		groups, err := store.ListEventEPGGroups(taskCtx)
		if err != nil {
			log.Error("list event groups failed", "error", err)
			return
		}
		for _, group := range groups {
			if err := svc.RunEventGroup(taskCtx, group); err != nil {
				log.Error("event group run failed", "group_id", group.ID, "error", err)
			}
		}
	})
	go groupRefresh.Run(mainCtx)

	teamRefresh := scheduler.New(cfg.SchedulerInterval, func(taskCtx context.Context, now time.Time) {
		if _, err := svc.GenerateTeamEPG(taskCtx, nil, 0); err != nil {
			log.Error("team epg generation failed", "error", err)
		}
	})
	go teamRefresh.Run(mainCtx)

	maintenance := scheduler.New(1*time.Hour, func(taskCtx context.Context, now time.Time) {
		svc.PurgeExpiredChannels(taskCtx, now)
	})
	go maintenance.Run(mainCtx)

	srv := api.NewServer(svc, svc.Ledger(), nil)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("starting http server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("stopped")
}
