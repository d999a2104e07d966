package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/callroom/internal/adapters/http"
	wssignal "github.com/dkeye/callroom/internal/adapters/signal"
	"github.com/dkeye/callroom/internal/app"
	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/config"
	"github.com/dkeye/callroom/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "callroom",
	Short: "Room based WebRTC signaling server",
	Long:  `callroom relays call offers, answers, renegotiation, chat and presence events between browsers that share a room over a single websocket each.`,
	RunE:  run,
}

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config.Flags(rootCmd.Flags())
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("callroom failed")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.Level())
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	o := orch.New(orch.Options{
		NotifyDropped:  cfg.NotifyDropped,
		MaxIdentityLen: cfg.MaxIdentityLen,
		MaxRoomLen:     cfg.MaxRoomLen,
	}, app.PolicyByName(cfg.BackpressurePolicy), m)

	ctrl := wssignal.NewSignalWSController(o,
		wssignal.NewEventRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		wssignal.Settings{
			ReadLimit:   cfg.ReadLimit,
			PingPeriod:  cfg.PingPeriod,
			PongWait:    cfg.PongWait,
			WriteWait:   cfg.WriteWait,
			SendBuffer:  cfg.SendBuffer,
			CheckOrigin: router.NewOriginPolicy(cfg.AllowedOrigins).Allowed,
		})

	r := router.SetupRouter(ctx, cfg, o, ctrl, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("callroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		ctrl.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
