// Package history persists the decaying per-entity filing statistics that
// feed suggestion scoring: conversation, sender and sender-domain
// associations plus a recently-used cases list.
package history

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/config"
	"github.com/hpungsan/casefile/internal/kv"
)

// StatsKey is the kv key holding the serialized Stats.
const StatsKey = "history"

// Association is one entity -> case link.
type Association struct {
	Count      int   `json:"count"`
	LastSeenAt int64 `json:"lastSeenAt"` // unix millis
}

// EntityMap maps an entity (conversation key, sender address or domain) to
// its associated cases.
type EntityMap map[string]map[string]Association

// RecentCase is an entry of the recently-used cases list.
type RecentCase struct {
	CaseID     string `json:"caseId"`
	LastUsedAt int64  `json:"lastUsedAt"` // unix millis
	UseCount   int    `json:"useCount"`
}

// Stats is the full persisted history.
type Stats struct {
	Conversations EntityMap    `json:"conversations"`
	Senders       EntityMap    `json:"senders"`
	Domains       EntityMap    `json:"domains"`
	Recent        []RecentCase `json:"recent"`
}

// NewStats returns empty stats with initialized maps.
func NewStats() *Stats {
	return &Stats{
		Conversations: EntityMap{},
		Senders:       EntityMap{},
		Domains:       EntityMap{},
		Recent:        []RecentCase{},
	}
}

// Limits bounds every collection in Stats.
type Limits struct {
	MaxConversations  int
	MaxSenders        int
	MaxDomains        int
	MaxCasesPerEntity int
	MaxRecent         int
}

// DefaultLimits returns the built-in caps.
func DefaultLimits() Limits {
	return LimitsFromConfig(config.DefaultConfig())
}

// LimitsFromConfig reads the caps from cfg.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxConversations:  cfg.HistoryMaxConversations,
		MaxSenders:        cfg.HistoryMaxSenders,
		MaxDomains:        cfg.HistoryMaxDomains,
		MaxCasesPerEntity: cfg.HistoryMaxCasesPerEntity,
		MaxRecent:         cfg.HistoryMaxRecent,
	}
}

// Store reads and writes Stats through a kv backend.
type Store struct {
	mu     sync.Mutex
	kv     kv.Store
	limits Limits
	now    func() time.Time
	log    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a history store.
func New(store kv.Store, limits Limits, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		limits: limits,
		now:    time.Now,
		log:    log.With().Str("component", "history").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordSuccessfulFiling bumps the conversation, sender and domain counters
// for caseID and moves it to the front of the recent list. Empty keys are
// skipped; an empty caseID is a no-op.
func (s *Store) RecordSuccessfulFiling(ctx context.Context, caseID, conversationKey, senderAddress string) error {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.load(ctx)
	now := s.now().UnixMilli()

	if key := strings.TrimSpace(conversationKey); key != "" {
		bump(stats.Conversations, key, caseID, now)
	}
	if sender := NormalizeAddress(senderAddress); sender != "" {
		bump(stats.Senders, sender, caseID, now)
		if domain := DomainOf(sender); domain != "" {
			bump(stats.Domains, domain, caseID, now)
		}
	}
	stats.Recent = touchRecent(stats.Recent, caseID, now)

	prune(stats, s.limits)
	return kv.SaveJSON(ctx, s.kv, StatsKey, stats)
}

// MappedCase returns the case a conversation was filed to, or "" when the
// conversation is unknown. With several cases, the most used wins, then the
// most recent.
func (s *Store) MappedCase(ctx context.Context, conversationKey string) (string, error) {
	key := strings.TrimSpace(conversationKey)
	if key == "" {
		return "", nil
	}
	s.mu.Lock()
	stats := s.load(ctx)
	s.mu.Unlock()

	best, bestAssoc := "", Association{}
	for caseID, a := range stats.Conversations[key] {
		if best == "" || a.Count > bestAssoc.Count ||
			(a.Count == bestAssoc.Count && a.LastSeenAt > bestAssoc.LastSeenAt) ||
			(a.Count == bestAssoc.Count && a.LastSeenAt == bestAssoc.LastSeenAt && caseID < best) {
			best, bestAssoc = caseID, a
		}
	}
	return best, nil
}

// Stats returns a snapshot of the stored history. The result is a fresh
// copy; mutating it does not affect the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx), nil
}

// load reads the stats, treating a missing or corrupt value as empty.
func (s *Store) load(ctx context.Context) *Stats {
	stats := NewStats()
	if _, err := kv.LoadJSON(ctx, s.kv, StatsKey, stats); err != nil {
		s.log.Warn().Err(err).Msg("history unreadable, starting empty")
		stats = NewStats()
	}
	if stats.Conversations == nil {
		stats.Conversations = EntityMap{}
	}
	if stats.Senders == nil {
		stats.Senders = EntityMap{}
	}
	if stats.Domains == nil {
		stats.Domains = EntityMap{}
	}
	return stats
}

func bump(m EntityMap, entity, caseID string, now int64) {
	cases := m[entity]
	if cases == nil {
		cases = map[string]Association{}
		m[entity] = cases
	}
	a := cases[caseID]
	a.Count++
	a.LastSeenAt = now
	cases[caseID] = a
}

func touchRecent(list []RecentCase, caseID string, now int64) []RecentCase {
	for i := range list {
		if list[i].CaseID == caseID {
			list[i].LastUsedAt = now
			list[i].UseCount++
			return list
		}
	}
	return append(list, RecentCase{CaseID: caseID, LastUsedAt: now, UseCount: 1})
}

// prune applies the size caps: least-recently-touched cases per entity,
// then least-recently-touched entities, then the recent list.
func prune(stats *Stats, l Limits) {
	pruneEntities(stats.Conversations, l.MaxConversations, l.MaxCasesPerEntity)
	pruneEntities(stats.Senders, l.MaxSenders, l.MaxCasesPerEntity)
	pruneEntities(stats.Domains, l.MaxDomains, l.MaxCasesPerEntity)

	sort.SliceStable(stats.Recent, func(i, j int) bool {
		return stats.Recent[i].LastUsedAt > stats.Recent[j].LastUsedAt
	})
	if l.MaxRecent > 0 && len(stats.Recent) > l.MaxRecent {
		stats.Recent = stats.Recent[:l.MaxRecent]
	}
}

func pruneEntities(m EntityMap, maxEntities, maxCases int) {
	if maxCases > 0 {
		for entity, cases := range m {
			if len(cases) <= maxCases {
				continue
			}
			ids := make([]string, 0, len(cases))
			for id := range cases {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				a, b := cases[ids[i]], cases[ids[j]]
				if a.LastSeenAt != b.LastSeenAt {
					return a.LastSeenAt > b.LastSeenAt
				}
				return ids[i] < ids[j]
			})
			for _, id := range ids[maxCases:] {
				delete(cases, id)
			}
			m[entity] = cases
		}
	}

	if maxEntities <= 0 || len(m) <= maxEntities {
		return
	}
	entities := make([]string, 0, len(m))
	touched := make(map[string]int64, len(m))
	for entity, cases := range m {
		entities = append(entities, entity)
		touched[entity] = LastTouched(cases)
	}
	sort.Slice(entities, func(i, j int) bool {
		if touched[entities[i]] != touched[entities[j]] {
			return touched[entities[i]] > touched[entities[j]]
		}
		return entities[i] < entities[j]
	})
	for _, entity := range entities[maxEntities:] {
		delete(m, entity)
	}
}

// LastTouched returns the most recent LastSeenAt across cases.
func LastTouched(cases map[string]Association) int64 {
	var latest int64
	for _, a := range cases {
		if a.LastSeenAt > latest {
			latest = a.LastSeenAt
		}
	}
	return latest
}

// NormalizeAddress extracts and lowercases the bare address from a sender
// string such as `"Jane Doe" <Jane@Example.com>`.
func NormalizeAddress(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}
	return strings.ToLower(strings.Trim(sender, "<> "))
}

// DomainOf returns the lowercased domain of an address, or "".
func DomainOf(address string) string {
	address = NormalizeAddress(address)
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return address[at+1:]
}
