// Package ops wires the filing core together: suggestion, status
// resolution, filing with duplicate handling, reversal, compose intents,
// deferred filings and history.
package ops

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/config"
	"github.com/hpungsan/casefile/internal/dupe"
	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/filedcache"
	"github.com/hpungsan/casefile/internal/filing"
	"github.com/hpungsan/casefile/internal/history"
	"github.com/hpungsan/casefile/internal/kv"
	"github.com/hpungsan/casefile/internal/labels"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/resolver"
	"github.com/hpungsan/casefile/internal/suggest"
)

// Deps are the collaborators of a Service.
type Deps struct {
	// Store is the (namespaced) key-value store holding all local state.
	Store kv.Store
	// Remote is the case-management authority. Nil means offline.
	Remote remote.Authority
	// Labeler is the host's label surface. Nil persists labels in Store.
	Labeler labels.Labeler
	Config  *config.Config
	Now     func() time.Time
	// Sleep replaces the label verification wait, for tests.
	Sleep  func(ctx context.Context, d time.Duration)
	Logger zerolog.Logger
}

// Service runs filing operations.
type Service struct {
	cfg      *config.Config
	policy   dupe.Policy
	remote   remote.Authority
	engine   *suggest.Engine
	history  *history.Store
	cache    *filedcache.Cache
	records  *filing.Records
	intents  *filing.Intents
	deferred *dupe.Queue
	labels   *labels.Toggler
	resolver *resolver.Resolver
	now      func() time.Time
	log      zerolog.Logger
}

// New builds a Service.
func New(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.NewInvalidRequest("store is required")
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	policy, err := dupe.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	if d.Remote == nil {
		d.Remote = remote.Offline{}
	}
	if d.Labeler == nil {
		d.Labeler = labels.NewKVLabeler(d.Store)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Logger

	hist := history.New(d.Store, history.LimitsFromConfig(cfg), log, history.WithClock(d.Now))
	cache := filedcache.New(d.Store, cfg.CacheMaxEntries, log, filedcache.WithClock(d.Now))
	records := filing.NewRecords(d.Store, log)
	records.SetClock(d.Now)
	deferred := dupe.NewQueue(d.Store, 0, log)
	deferred.SetClock(d.Now)

	toggler := labels.NewToggler(d.Labeler, cfg.LabelVerifyAttempts, time.Duration(cfg.LabelVerifyDelayMS)*time.Millisecond, log)
	if d.Sleep != nil {
		toggler.SetSleep(d.Sleep)
	}

	return &Service{
		cfg:    cfg,
		policy: policy,
		remote: d.Remote,
		engine: suggest.NewEngine(hist, suggest.Config{
			TopK:                cfg.TopK,
			MinConfidence:       cfg.MinConfidence,
			AutoSelectThreshold: cfg.AutoSelectThreshold,
			Now:                 d.Now,
			Logger:              log,
		}),
		history:  hist,
		cache:    cache,
		records:  records,
		intents:  filing.NewIntents(d.Store, log),
		deferred: deferred,
		labels:   toggler,
		resolver: resolver.New(resolver.Deps{
			Cache:   cache,
			Records: records,
			Remote:  d.Remote,
			Labels:  toggler,
			Now:     d.Now,
			Logger:  log,
		}),
		now: d.Now,
		log: log.With().Str("component", "ops").Logger(),
	}, nil
}

// Resolver returns the status resolver, for the watch loop.
func (s *Service) Resolver() *resolver.Resolver { return s.resolver }

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// Policy returns the active duplicate policy.
func (s *Service) Policy() dupe.Policy { return s.policy }

// Logger returns the service logger.
func (s *Service) Logger() zerolog.Logger { return s.log }

// validateItem rejects a context that identifies no email.
func validateItem(item resolver.CurrentItemContext) error {
	if item.Empty() {
		return errors.NewInvalidRequest("item must have an item_id, conversation_id, subject or created_at")
	}
	return nil
}

// conversationKey is the key history associates an email's thread with.
// Emails without a conversation id have none; a shared subject is not a thread.
func conversationKey(item resolver.CurrentItemContext) string {
	return strings.TrimSpace(item.ConversationID)
}

func requireCaseID(caseID string) (string, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return "", errors.NewInvalidRequest("case_id is required")
	}
	return caseID, nil
}
