package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubpos/internal/config"
	"clubpos/internal/infra"
	"clubpos/internal/middleware"
	"clubpos/internal/router"
	"clubpos/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// dev: pretty console, prod: JSON
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mesas := infra.NewMesasClient(cfg.MesasServiceURL, cfg.MesasTimeout(), infra.NewCircuitBreaker(infra.DefaultCBConfig()))
	dispatcher := worker.NewDispatcher(rdb)

	limiter := middleware.NewRateLimiter(600, time.Minute)
	limiter.StartPurge(5*time.Minute, ctx.Done())

	deps := router.Deps{
		DB:          db,
		Redis:       rdb,
		Mesas:       mesas,
		Dispatcher:  dispatcher,
		RateLimiter: limiter,
	}
	svcs := router.NewServices(cfg, deps)

	// Worker handlers are wired here so the pool sees the same mesas client
	// and breaker as the request path.
	liquidacion := worker.NewLiquidacionWorker(mesas, dispatcher, cfg.LiquidacionMaxReintentos, cfg.MesasTimeout())
	alertas := worker.NewAlertaWorker(infra.NewMailer(cfg), svcs.Caja, dispatcher)
	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, map[string]worker.JobHandler{
		worker.QueueLiquidacion: liquidacion.Handle,
		worker.QueueAlertas:     alertas.Handle,
	})
	worker.StartDLQMonitor(ctx, rdb, worker.QueueLiquidacion, time.Minute)
	worker.StartDLQMonitor(ctx, rdb, worker.QueueAlertas, time.Minute)

	r := router.New(cfg, deps, svcs)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("clubpos ledger listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	// Stop workers after in-flight requests have finished enqueueing.
	cancel()
	log.Info().Msg("server exited")
}
