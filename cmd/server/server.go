// Command server boots the matching engine core and its TCP transport:
// load config, construct the asset registry / ledger / engine / depth
// cache / sinks, wire them into a Dispatcher, and serve until a
// termination signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fenrir/internal/asset"
	"fenrir/internal/config"
	dec "fenrir/internal/decimal"
	"fenrir/internal/depth"
	"fenrir/internal/dispatch"
	"fenrir/internal/ledger"
	"fenrir/internal/matching"
	"fenrir/internal/server"
	"fenrir/internal/sinks"

	tomb "gopkg.in/tomb.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setupLogging(cfg.Logging.Level, cfg.Logging.Format)

	assets := asset.New()
	led := ledger.New()
	sink := sinks.NewMemory()

	lastFrac, err := dec.Parse(cfg.Limits.LastPriceFraction)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid limits.last_price_fraction")
	}
	closingFrac, err := dec.Parse(cfg.Limits.ClosingPriceFraction)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid limits.closing_price_fraction")
	}
	limits := matching.PriceLimits{LastPriceFraction: lastFrac, ClosingPriceFraction: closingFrac}
	eng := matching.New(assets, led, sink, limits)

	cache := depth.NewCache(cfg.Cache.Timeout)
	disp := dispatch.New(assets, led, eng, cache, sink)
	srv := server.New(cfg.Listen.Address, cfg.Listen.Port, disp, cfg.Listen.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return cache.RunPurgeTimer(t)
	})
	t.Go(func() error {
		return srv.Run(ctx)
	})

	<-ctx.Done()
	sink.RequestShutdown()
	log.Info().Msg("shutdown signal received, draining in-flight requests")
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
