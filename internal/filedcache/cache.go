// Package filedcache is the bounded local cache mapping an email to the case
// and document it was filed under.
//
// All entries live in a single JSON object under one kv key. An entry is keyed
// either by the email's conversation identifier or, when that is not known yet
// (a draft before send), by its normalized subject prefixed with "subj:".
package filedcache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/kv"
	"github.com/hpungsan/casefile/internal/textmatch"
)

// StoreKey is the kv key holding every entry.
const StoreKey = "filed_cache"

// SubjectKeyPrefix marks keys derived from a normalized subject.
const SubjectKeyPrefix = "subj:"

// Entry caps.
const (
	DefaultMaxEntries = 100
	LimitedMaxEntries = 20
)

// Entry records where an email was filed.
type Entry struct {
	CaseID     string `json:"caseId"`
	DocumentID string `json:"documentId"`
	Subject    string `json:"subject"`
	CaseName   string `json:"caseName,omitempty"`
	CaseKey    string `json:"caseKey,omitempty"`
	FiledAt    int64  `json:"filedAt"` // unix millis
}

// SubjectKey returns the cache key for subject, or "" for an empty subject.
func SubjectKey(subject string) string {
	n := textmatch.NormalizeSubject(subject)
	if n == "" {
		return ""
	}
	return SubjectKeyPrefix + n
}

// Source tells which key shape produced a Lookup hit.
type Source string

const (
	SourceConversation Source = "conversation"
	SourceSubject      Source = "subject"
)

// Cache is the filed-status cache.
type Cache struct {
	mu         sync.Mutex
	kv         kv.Store
	maxEntries int
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for FiledAt defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over store. A maxEntries of 0 derives the cap from the
// backend: LimitedMaxEntries when it has a per-value ceiling, otherwise
// DefaultMaxEntries.
func New(store kv.Store, maxEntries int, log zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		kv:         store,
		maxEntries: maxEntries,
		now:        time.Now,
		log:        log.With().Str("component", "filedcache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxEntries returns the effective entry cap.
func (c *Cache) MaxEntries() int {
	if c.maxEntries > 0 {
		return c.maxEntries
	}
	if kv.MaxValueBytes(c.kv) > 0 {
		return LimitedMaxEntries
	}
	return DefaultMaxEntries
}

// Put stores e under key and reads it back. A failed verification is logged,
// not returned.
func (c *Cache) Put(ctx context.Context, key string, e Entry) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.NewInvalidRequest("cache key is required")
	}
	if e.FiledAt == 0 {
		e.FiledAt = c.now().UnixMilli()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	entries[key] = e
	c.save(ctx, entries)
	c.verify(ctx, key)
	return nil
}

// Get returns the entry stored under key.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	if key == "" {
		return Entry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.load(ctx)[key]
	return e, ok
}

// GetBySubject returns the entry stored under the subject key of subject.
func (c *Cache) GetBySubject(ctx context.Context, subject string) (Entry, bool) {
	return c.Get(ctx, SubjectKey(subject))
}

// UpgradeKey copies the entry at fromKey to toKey. The original stays in
// place. Returns false when there was nothing to copy.
func (c *Cache) UpgradeKey(ctx context.Context, fromKey, toKey string) bool {
	if fromKey == "" || toKey == "" || fromKey == toKey {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	e, ok := entries[fromKey]
	if !ok {
		return false
	}
	entries[toKey] = e
	c.save(ctx, entries)
	c.verify(ctx, toKey)
	c.log.Debug().Str("from", fromKey).Str("to", toKey).Msg("cache key upgraded")
	return true
}

// Lookup finds the entry for an email: first by conversation id, then by
// subject key. A subject hit is copied under the conversation id when one is
// known.
func (c *Cache) Lookup(ctx context.Context, conversationID, subject string) (Entry, Source, bool) {
	if e, ok := c.Get(ctx, conversationID); ok {
		return e, SourceConversation, true
	}
	subjKey := SubjectKey(subject)
	e, ok := c.Get(ctx, subjKey)
	if !ok {
		return Entry{}, "", false
	}
	if conversationID != "" {
		c.UpgradeKey(ctx, subjKey, conversationID)
	}
	return e, SourceSubject, true
}

// Remove deletes keys. Unknown keys are ignored.
func (c *Cache) Remove(ctx context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	changed := false
	for _, k := range keys {
		if _, ok := entries[k]; ok {
			delete(entries, k)
			changed = true
		}
	}
	if changed {
		c.save(ctx, entries)
	}
}

// Entries returns a copy of every cached entry.
func (c *Cache) Entries(ctx context.Context) map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) map[string]Entry {
	entries := map[string]Entry{}
	if _, err := kv.LoadJSON(ctx, c.kv, StoreKey, &entries); err != nil {
		c.log.Warn().Err(err).Msg("cache unreadable, treating as empty")
		return map[string]Entry{}
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return entries
}

func (c *Cache) save(ctx context.Context, entries map[string]Entry) {
	entries = evict(entries, c.MaxEntries(), kv.MaxValueBytes(c.kv))
	if err := kv.SaveJSON(ctx, c.kv, StoreKey, entries); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}
}

func (c *Cache) verify(ctx context.Context, key string) {
	if _, ok := c.load(ctx)[key]; !ok {
		c.log.Warn().Str("key", key).Str("backend", c.kv.Name()).Msg("cache write not visible on read-back")
	}
}

// evict keeps the newest maxEntries by FiledAt, then drops the oldest until
// the serialized form fits under maxBytes (when maxBytes > 0).
func evict(entries map[string]Entry, maxEntries, maxBytes int) map[string]Entry {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := entries[keys[i]], entries[keys[j]]
		if a.FiledAt != b.FiledAt {
			return a.FiledAt > b.FiledAt
		}
		return keys[i] < keys[j]
	})

	if maxEntries > 0 && len(keys) > maxEntries {
		for _, k := range keys[maxEntries:] {
			delete(entries, k)
		}
		keys = keys[:maxEntries]
	}

	if maxBytes <= 0 {
		return entries
	}
	for len(keys) > 0 {
		data, err := json.Marshal(entries)
		if err != nil || len(data) <= maxBytes {
			break
		}
		last := keys[len(keys)-1]
		delete(entries, last)
		keys = keys[:len(keys)-1]
	}
	return entries
}
