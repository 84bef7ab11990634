package kv

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Tiered routes every call to the first usable backend of an ordered chain.
// A backend that fails is abandoned for the rest of the process and the call
// is retried on the next one. An in-process Memory tier always terminates the
// chain, so Tiered never returns a storage error.
type Tiered struct {
	mu     sync.Mutex
	tiers  []Store
	active int
	log    zerolog.Logger
}

// Probe pings candidates in order (runtime, roaming, local) and returns a
// chain starting at the first one that answers. Nil candidates are skipped.
func Probe(ctx context.Context, log zerolog.Logger, candidates ...Store) *Tiered {
	log = log.With().Str("component", "kv").Logger()

	var tiers []Store
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if p, ok := c.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				log.Warn().Err(err).Str("backend", c.Name()).Msg("backend unavailable, skipping")
				continue
			}
		}
		tiers = append(tiers, c)
	}
	if len(tiers) == 0 || tiers[len(tiers)-1].Name() != "memory" {
		tiers = append(tiers, NewMemory())
	}

	log.Info().Str("backend", tiers[0].Name()).Msg("storage backend selected")
	return &Tiered{tiers: tiers, log: log}
}

// Name reports the active backend.
func (t *Tiered) Name() string {
	return t.Active().Name()
}

// Active returns the backend currently serving calls.
func (t *Tiered) Active() Store {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tiers[t.active]
}

// MaxValueBytes reports the ceiling of the active backend.
func (t *Tiered) MaxValueBytes() int {
	return MaxValueBytes(t.Active())
}

func (t *Tiered) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	t.each(func(s Store) error {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		value, found = v, ok
		return nil
	})
	return value, found, nil
}

func (t *Tiered) Set(ctx context.Context, key, value string) error {
	t.each(func(s Store) error {
		return s.Set(ctx, key, value)
	})
	return nil
}

func (t *Tiered) Remove(ctx context.Context, key string) error {
	t.each(func(s Store) error {
		return s.Remove(ctx, key)
	})
	return nil
}

// each runs fn on the active tier, demoting to the next tier on failure.
func (t *Tiered) each(fn func(Store) error) {
	t.mu.Lock()
	start := t.active
	t.mu.Unlock()

	for i := start; i < len(t.tiers); i++ {
		s := t.tiers[i]
		err := fn(s)
		if err == nil {
			return
		}
		if i == len(t.tiers)-1 {
			t.log.Error().Err(err).Str("backend", s.Name()).Msg("last storage tier failed")
			return
		}
		t.log.Warn().Err(err).
			Str("backend", s.Name()).
			Str("next", t.tiers[i+1].Name()).
			Msg("storage tier failed, falling back")
		t.mu.Lock()
		if t.active <= i {
			t.active = i + 1
		}
		t.mu.Unlock()
	}
}
