package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/config"
	"github.com/hpungsan/casefile/internal/db"
	"github.com/hpungsan/casefile/internal/kv"
	"github.com/hpungsan/casefile/internal/ops"
	"github.com/hpungsan/casefile/internal/remote"
)

// services owns the opened storage backends and the service built on them.
type services struct {
	svc     *ops.Service
	closers []io.Closer
	once    sync.Once
}

// Close releases every opened backend. Safe to call more than once.
func (r *services) Close() {
	r.once.Do(func() {
		for i := len(r.closers) - 1; i >= 0; i-- {
			_ = r.closers[i].Close()
		}
	})
}

// newLogger logs to stderr; stdout carries CLI output and the MCP transport.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "casefile").Logger()
}

// openServices opens the storage tiers, picks the first one that answers, and
// builds the service over it.
func openServices(ctx context.Context, baseDir string, cfg *config.Config, log zerolog.Logger) (*services, error) {
	rt := &services{}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	var candidates []kv.Store

	if !cfg.DisableRuntimeStore {
		database, err := db.Init(baseDir)
		if err != nil {
			log.Warn().Err(err).Msg("runtime store unavailable")
		} else {
			db.ConfigurePool(database, cfg)
			rt.closers = append(rt.closers, database)
			candidates = append(candidates, kv.NewSQLite(database))
		}
	}

	if cfg.RedisURL != "" {
		roaming, err := kv.NewRoaming(cfg.RedisURL, cfg.RoamingMaxValueBytes, log)
		if err != nil {
			log.Warn().Err(err).Msg("roaming store unavailable")
		} else {
			rt.closers = append(rt.closers, roaming)
			candidates = append(candidates, roaming)
		}
	}

	if !cfg.DisableLocalStore {
		local, err := kv.OpenBolt(filepath.Join(baseDir, "local.db"))
		if err != nil {
			log.Warn().Err(err).Msg("local store unavailable")
		} else {
			rt.closers = append(rt.closers, local)
			candidates = append(candidates, local)
		}
	}

	store := kv.Namespace(kv.Probe(ctx, log, candidates...), cfg.KeyPrefix, cfg.Profile)

	authority, err := newAuthority(cfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	svc, err := ops.New(ops.Deps{
		Store:  store,
		Remote: authority,
		Config: cfg,
		Logger: log,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build service: %w", err)
	}
	rt.svc = svc
	return rt, nil
}

// newAuthority returns the HTTP client for remote_url, or the offline
// authority when none is configured.
func newAuthority(cfg *config.Config, log zerolog.Logger) (remote.Authority, error) {
	if cfg.RemoteURL == "" {
		log.Info().Msg("no remote_url configured, remote lookups report unavailable")
		return remote.Offline{}, nil
	}
	return remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.RemoteURL,
		Token:   cfg.RemoteToken,
		Timeout: time.Duration(cfg.RemoteTimeoutMS) * time.Millisecond,
		Logger:  log,
	})
}
