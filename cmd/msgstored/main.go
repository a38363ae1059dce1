package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"msgstore/internal/codec"
	"msgstore/internal/config"
	"msgstore/internal/domain"
	"msgstore/internal/metrics"
	"msgstore/internal/store"
)

func main() {
	cfgPath := flag.String("config", "msgstore.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	c, err := codec.ForName(cfg.Store.Codec)
	if err != nil {
		logger.Fatal("resolve codec", zap.Error(err))
	}

	opts := []store.Option{
		store.WithRegion(cfg.Store.Region),
		store.WithCodec(c),
		store.WithTimeoutOnIdle(cfg.Store.TimeoutOnIdle),
		store.WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, store.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
	}

	s, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, opts...)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer s.Close()

	logger.Info("msgstored started",
		zap.String("driver", cfg.Store.Driver),
		zap.String("region", s.Region()),
		zap.Bool("timeout_on_idle", cfg.Store.TimeoutOnIdle),
		zap.Bool("sweep", cfg.Sweep.Enabled))

	if cfg.Sweep.RemoveOnExpiry {
		s.RegisterExpiryCallback(func(ctx context.Context, cs *store.Store, g *domain.MessageGroup) {
			if err := cs.RemoveMessageGroup(ctx, g.GroupID); err != nil {
				logger.Error("remove expired group", zap.String("group", g.GroupID), zap.Error(err))
			}
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go metrics.Serve(ctx, cfg.Metrics.Addr, logger)
	}

	if cfg.Sweep.Enabled {
		runSweeper(ctx, s, cfg.Sweep, logger)
	} else {
		<-ctx.Done()
	}
	logger.Info("msgstored shutting down")
}

func runSweeper(ctx context.Context, s *store.Store, cfg config.SweepConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireMessageGroups(ctx, cfg.Timeout)
			if err != nil {
				logger.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expiry sweep", zap.Int("candidates", n))
			}
		}
	}
}
