package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/behavior"
	"github.com/lbarthel/tubewatch/internal/blockdetect"
	"github.com/lbarthel/tubewatch/internal/browser"
	"github.com/lbarthel/tubewatch/internal/clock"
	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/config"
	"github.com/lbarthel/tubewatch/internal/dedup"
	"github.com/lbarthel/tubewatch/internal/extract"
	"github.com/lbarthel/tubewatch/internal/identity"
	"github.com/lbarthel/tubewatch/internal/logging"
	"github.com/lbarthel/tubewatch/internal/metrics"
	"github.com/lbarthel/tubewatch/internal/progress"
	"github.com/lbarthel/tubewatch/internal/ratelimit"
	"github.com/lbarthel/tubewatch/internal/sink"
	"github.com/lbarthel/tubewatch/internal/snapshot"
)

// app holds the assembled pipeline for one process lifetime.
type app struct {
	log      *zap.Logger
	cfg      config.Config
	store    *dedup.Store
	rotator  *identity.Rotator
	archiver snapshot.Archiver
	orch     *collector.Orchestrator
	hub      *progress.Hub
}

// buildApp assembles every collaborator from config. Provider names select
// the concrete implementations.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	store, err := dedup.New(log, dedup.Config{
		Addr:       cfg.Dedup.Addr,
		Password:   cfg.Dedup.Password,
		DB:         cfg.Dedup.DB,
		Namespace:  cfg.Dedup.Namespace,
		VideoTTL:   time.Duration(cfg.Dedup.VideoTTLHours) * time.Hour,
		SessionTTL: time.Duration(cfg.Dedup.SessionTTLMin) * time.Minute,
		FailOpen:   cfg.Dedup.FailOpen,
	})
	if err != nil {
		return nil, err
	}

	var rotator *identity.Rotator
	if cfg.Identity.Enabled {
		pool := make([]identity.Identity, 0, len(cfg.Identity.Endpoints))
		for _, ep := range cfg.Identity.Endpoints {
			pool = append(pool, identity.Identity{
				Name:      ep.Name,
				Endpoint:  ep.Endpoint,
				PublicKey: ep.PublicKey,
			})
		}
		tunnel := &identity.Tunnel{
			Interface:  cfg.Identity.Interface,
			ConfigDir:  cfg.Identity.ConfigDir,
			PrivateKey: cfg.Identity.PrivateKey,
			Address:    cfg.Identity.Address,
		}
		rotator = identity.NewRotator(
			log,
			tunnel,
			identity.NewHTTPVerifier(cfg.Identity.ProbeURL),
			pool,
			time.Duration(cfg.Identity.StabilizationSec)*time.Second,
			clock.System{},
		)
	}

	archiver, err := buildArchiver(ctx, log, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	hub := progress.NewHub()
	hub.Register(progress.LogSink{Log: log})
	hub.Register(progress.MetricsSink{})

	gate := ratelimit.New(ratelimit.Config{
		SoftCeilingPerMin: cfg.RateLimit.SoftCeilingPerMin,
		Cooldown:          time.Duration(cfg.RateLimit.CooldownSec) * time.Second,
		MaxBackoff:        time.Duration(cfg.RateLimit.MaxBackoffSec) * time.Second,
		FactorCeiling:     cfg.RateLimit.FactorCeiling,
	}, clock.System{})

	sessions := browser.NewFactory(log, browser.Config{
		Headless:   cfg.Browser.Headless,
		NavTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		UserAgent:  cfg.Browser.UserAgent,
	})

	detector := blockdetect.New(time.Duration(cfg.Collector.NoResultsGraceSec) * time.Second)

	// The concrete rotator is optional; a typed nil must not reach the
	// orchestrator's interface field.
	var rotIface collector.Rotator
	if rotator != nil {
		rotIface = rotator
	}

	orch := collector.New(
		log,
		collector.Config{
			SearchBaseURL:       cfg.Collector.SearchBaseURL,
			RecencyParam:        cfg.Collector.RecencyParam,
			MaxRecords:          cfg.Collector.MaxRecords,
			MaxScrollAttempts:   cfg.Collector.MaxScrollAttempts,
			StallPasses:         cfg.Collector.StallPasses,
			KeywordBudget:       cfg.KeywordBudget(),
			RotateOnBlock:       cfg.Collector.RotateOnBlock,
			NavRetryOnRateLimit: cfg.Collector.NavRetryOnRateLimit,
			Filter: extract.TitleFilter{
				Strict:     cfg.Collector.StrictTitleFilter,
				ExactMatch: cfg.Collector.ExactMatch,
			},
		},
		clock.System{},
		sessions,
		behavior.New(clock.System{}),
		detector,
		store,
		gate,
		rotIface,
		archiver,
		hub,
	)

	return &app{
		log:      log,
		cfg:      cfg,
		store:    store,
		rotator:  rotator,
		archiver: archiver,
		orch:     orch,
		hub:      hub,
	}, nil
}

func buildArchiver(ctx context.Context, log *zap.Logger, cfg config.Config) (snapshot.Archiver, error) {
	switch cfg.Snapshot.Provider {
	case "local":
		return snapshot.NewLocal(log, cfg.Snapshot.LocalDir, clock.System{})
	case "gcs":
		return snapshot.NewGCS(ctx, log, cfg.Snapshot.GCSBucket, clock.System{})
	default:
		return snapshot.Noop{}, nil
	}
}

func buildSink(ctx context.Context, log *zap.Logger, cfg config.Config) (sink.Sink, error) {
	switch cfg.Sink.Provider {
	case "postgres":
		return sink.NewPostgres(ctx, log, cfg.Sink.Postgres.DSN)
	case "pubsub":
		return sink.NewPubSub(ctx, log, cfg.Sink.PubSub.ProjectID, cfg.Sink.PubSub.TopicID)
	default:
		return sink.Noop{}, nil
	}
}

func (a *app) close(ctx context.Context) {
	if a.rotator != nil {
		if err := a.rotator.DisconnectCurrent(ctx); err != nil {
			a.log.Warn("identity disconnect on shutdown failed", zap.Error(err))
		}
	}
	if err := a.archiver.Close(); err != nil {
		a.log.Warn("archiver close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("dedup store close failed", zap.Error(err))
	}
	_ = a.log.Sync()
}
