package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/config"
	"github.com/octofetch/octofetch/internal/core/cache"
	"github.com/octofetch/octofetch/internal/core/engine"
	"github.com/octofetch/octofetch/internal/core/fetch"
	"github.com/octofetch/octofetch/internal/core/store"
	"github.com/octofetch/octofetch/internal/metrics"
)

// fetchEnv is everything one invocation needs to talk to the upstream API.
type fetchEnv struct {
	cfg     *config.Config
	session *fetch.Session
	cache   cache.Cache
	db      *store.Store
	logger  *logging.Logger
}

type fetchEnvOptions struct {
	NoCache bool
	Logger  *logging.Logger
	Clock   func() time.Time
}

// openFetchEnv builds a session from cfg. The store is optional unless it
// backs the cache: without it the tracker starts cold and nothing persists.
func openFetchEnv(ctx context.Context, cfg *config.Config, opts fetchEnvOptions) (*fetchEnv, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fetch environment requires a config")
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	env := &fetchEnv{cfg: cfg, logger: opts.Logger}

	backend := cfg.Cache.Backend
	if opts.NoCache {
		backend = config.CacheBackendNone
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		if backend == config.CacheBackendStore {
			return nil, err
		}
		env.warn("Store unavailable; rate limit state will not persist", zap.Error(err))
	} else {
		env.db = db
	}

	env.session = &fetch.Session{
		BaseURL:           cfg.GitHub.BaseURL,
		Token:             cfg.GitHub.Token,
		Client:            &http.Client{},
		RequestTimeout:    cfg.GitHub.RequestTimeout,
		MaxRateLimitWaits: cfg.GitHub.MaxRateLimitWaits,
		RateLimitBackoff:  cfg.GitHub.RateLimitBackoff,
		UserAgent:         cfg.GitHub.UserAgent,
		ToolVersion:       versionInfo.Version,
		Logger:            opts.Logger,
		Recorder:          metrics.FetchRecorder{},
		Clock:             clock,
	}

	tracker := engine.NewTracker(nil)
	if env.db != nil {
		restored, err := engine.Restore(ctx, env.db, env.session.Endpoint())
		if err != nil {
			env.warn("Could not restore rate limit state", zap.Error(err))
		} else {
			tracker = restored
		}
	}
	tracker.Clock = clock
	env.session.Tracker = tracker

	switch backend {
	case config.CacheBackendMemory:
		mem := cache.NewMemory(cfg.Cache.TTL)
		mem.Clock = clock
		env.cache = mem
	case config.CacheBackendStore:
		rc := store.NewResponseCache(env.db, cfg.Cache.TTL)
		rc.Clock = clock
		env.cache = rc
	}
	if env.cache != nil {
		env.session.Cache = env.cache
	}

	return env, nil
}

// Close persists the latest quota snapshot and releases the store.
func (e *fetchEnv) Close(ctx context.Context) error {
	if e == nil || e.db == nil {
		return nil
	}
	if err := e.session.PersistRateLimit(context.WithoutCancel(ctx), e.db); err != nil {
		e.warn("Could not persist rate limit state", zap.Error(err))
	}
	return e.db.Close()
}

func (e *fetchEnv) warn(msg string, fields ...zap.Field) {
	if e.logger != nil {
		e.logger.Warn(msg, fields...)
	}
}
