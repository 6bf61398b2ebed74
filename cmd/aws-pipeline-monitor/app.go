package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/scottbrown/aws-pipeline-monitor/internal/config"
	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
	"github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor/sources"
)

// app holds what every command needs once flags and config are resolved.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	awsCfg   aws.Config
	identity pm.Identity
	cache    *pm.CacheStore
	metrics  *pm.Metrics
	fs       afero.Fs
}

// loadSettings reads the config file and applies flag overrides.
func loadSettings() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if profile != "" {
		cfg.Profile = profile
	}
	if region != "" {
		cfg.Region = region
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// newApp resolves config, logging, identity and the cache. AWS credentials
// are loaded only when remote is set or no --account was given.
func newApp(ctx context.Context, cmd *cobra.Command, remote bool) (*app, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: newLogger(cmd.ErrOrStderr(), cfg),
		fs:     afero.NewOsFs(),
	}

	a.metrics, err = pm.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	if remote || account == "" {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		if cfg.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
		}
		a.awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	if account != "" {
		a.identity = pm.Identity{AccountID: account, Profile: cfg.Profile}
	} else {
		a.identity, err = sources.STSIdentity(ctx, sts.NewFromConfig(a.awsCfg), cfg.Profile)
		if err != nil {
			return nil, err
		}
	}
	a.logger.Debug().Str("identity", a.identity.String()).Msg("resolved caller identity")

	a.cache = pm.NewCacheStore(a.fs, cfg.CacheDir, a.identity,
		pm.WithLogger(a.logger),
		pm.WithMetrics(a.metrics),
	)
	return a, nil
}

// monitor wires the source, fetcher and cache for rt.
func (a *app) monitor(rt pm.ResourceType) (*pm.Monitor, error) {
	rc := a.cfg.Resource(rt)

	src, err := sources.New(rt, a.awsCfg, rc.Budget)
	if err != nil {
		return nil, err
	}

	logger := a.logger.With().Str("resource_type", rt.String()).Logger()

	f := pm.NewFetcher(a.identity)
	f.ListRetry = rc.Retry.Apply(pm.ListPolicy())
	f.DetailRetry = rc.Retry.Apply(pm.DetailPolicy())
	f.ProgressEvery = a.cfg.ProgressEvery
	f.Logger = a.logger
	f.Metrics = a.metrics
	f.Progress = func(completed, total int, elapsed time.Duration) {
		logger.Info().
			Int("completed", completed).
			Int("total", total).
			Dur("elapsed", elapsed).
			Msg("progress")
	}

	m := pm.NewMonitor(src, a.cache, f)
	m.Freshness = rc.Freshness
	m.Logger = a.logger
	return m, nil
}

func parseResourceType(args []string) (pm.ResourceType, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one resource type: %v", resourceTypeNames())
	}
	return pm.ParseResourceType(args[0])
}
