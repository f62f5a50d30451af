package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/audit"
	"github.com/kozaktomas/attendance-kiosk/internal/cache"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/features"
	"github.com/kozaktomas/attendance-kiosk/internal/gallery"
	"github.com/kozaktomas/attendance-kiosk/internal/imaging"
	"github.com/kozaktomas/attendance-kiosk/internal/match"
	"github.com/kozaktomas/attendance-kiosk/internal/verify"
)

// pipeline bundles everything a command needs to verify and mark attendance.
type pipeline struct {
	cfg       *config.Config
	pool      *attendance.Pool
	repo      *attendance.Repository
	directory *gallery.Directory
	cache     *cache.Cache
	verifier  *verify.Verifier
	redis     *redis.Client
	logger    *zap.Logger
}

// buildPipeline wires the full verification pipeline from environment config.
func buildPipeline(logger *zap.Logger) (*pipeline, error) {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Directory.DatabaseDSN == "" {
		return nil, errors.New("DIRECTORY_DATABASE_DSN environment variable is required")
	}

	pool, err := attendance.Initialize(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize attendance store: %w", err)
	}

	directory, err := gallery.NewDirectory(cfg.Directory.DatabaseDSN, cfg.Directory.MediaDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to school directory: %w", err)
	}

	codec := imaging.NewCodec(cfg.Matching.MaxImageEdge)
	extractor := features.NewExtractor(cfg.Matching.MaxKeypoints)
	descriptors := cache.New(codec, extractor)
	repo := attendance.NewRepository(pool, cfg.Attendance.AllowStatusUpgrade)

	p := &pipeline{
		cfg:       cfg,
		pool:      pool,
		repo:      repo,
		directory: directory,
		cache:     descriptors,
		logger:    logger,
	}

	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if cfg.Audit.RedisAddr != "" {
		p.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Audit.RedisAddr,
			Password: cfg.Audit.RedisPassword,
			DB:       cfg.Audit.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.redis.Ping(pingCtx).Err(); err != nil {
			p.Close()
			return nil, fmt.Errorf("redis audit sink unreachable: %w", err)
		}
		sinks = append(sinks, audit.NewRedisSink(p.redis, cfg.Audit.Queue))
	}

	p.verifier = verify.New(
		match.Config{
			AcceptDistance: cfg.Matching.AcceptDistance,
			Threshold:      cfg.Matching.MatchThreshold,
		},
		codec,
		extractor,
		descriptors,
		directory,
		repo,
		audit.NewMultiSink(sinks...),
		&cfg.Sessions,
		cfg.Attendance.Location(),
		logger,
	)

	return p, nil
}

func (p *pipeline) Close() {
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.logger.Warn("closing redis client", zap.Error(err))
		}
	}
	if p.directory != nil {
		if err := p.directory.Close(); err != nil {
			p.logger.Warn("closing directory connection", zap.Error(err))
		}
	}
	if p.pool != nil {
		if err := p.pool.Close(); err != nil {
			p.logger.Warn("closing attendance store", zap.Error(err))
		}
	}
}
