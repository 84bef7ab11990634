package dupe

import (
	"context"
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/kv"
)

// DeferredKey is the storage key of the deferred-filing queue.
const DeferredKey = "deferred"

// DefaultMaxDeferred caps the queue; the oldest filings are dropped first.
const DefaultMaxDeferred = 50

// Deferred is a filing held back under PolicyWarn until the user confirms.
type Deferred struct {
	ID              string   `json:"id"`
	CaseID          string   `json:"caseId"`
	DocumentID      string   `json:"documentId,omitempty"`
	Subject         string   `json:"subject"`
	ConversationID  string   `json:"conversationId,omitempty"`
	ItemKey         string   `json:"itemKey,omitempty"`
	SenderAddress   string   `json:"sender,omitempty"`
	AttachmentNames []string `json:"attachments,omitempty"`
	CreatedAt       int64    `json:"createdAt"` // unix millis
}

// Queue persists deferred filings as one JSON array.
type Queue struct {
	kv  kv.Store
	max int
	now func() time.Time
	log zerolog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewQueue creates a Queue. maxEntries <= 0 uses DefaultMaxDeferred.
func NewQueue(store kv.Store, maxEntries int, log zerolog.Logger) *Queue {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxDeferred
	}
	return &Queue{
		kv:      store,
		max:     maxEntries,
		now:     time.Now,
		log:     log.With().Str("component", "deferred").Logger(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// SetClock replaces the queue's clock.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Add queues d and returns it with its id and creation time set. A pending
// filing of the same item to the same case is replaced.
func (q *Queue) Add(ctx context.Context, d Deferred) (Deferred, error) {
	if strings.TrimSpace(d.CaseID) == "" {
		return Deferred{}, errors.NewInvalidRequest("case_id is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	id, err := ulid.New(ulid.Timestamp(now), q.entropy)
	if err != nil {
		return Deferred{}, errors.NewInternal(err)
	}
	d.ID = id.String()
	d.CreatedAt = now.UnixMilli()

	items := q.load(ctx)
	kept := items[:0]
	for _, it := range items {
		if d.ItemKey != "" && it.ItemKey == d.ItemKey && it.CaseID == d.CaseID {
			continue
		}
		kept = append(kept, it)
	}
	kept = append(kept, d)
	if len(kept) > q.max {
		q.log.Info().Int("dropped", len(kept)-q.max).Msg("deferred queue full, dropping oldest")
		kept = kept[len(kept)-q.max:]
	}
	if err := q.save(ctx, kept); err != nil {
		return Deferred{}, err
	}
	return d, nil
}

// List returns queued filings, oldest first.
func (q *Queue) List(ctx context.Context) []Deferred {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Get returns the queued filing with id.
func (q *Queue) Get(ctx context.Context, id string) (Deferred, bool) {
	for _, d := range q.List(ctx) {
		if d.ID == id {
			return d, true
		}
	}
	return Deferred{}, false
}

// Remove drops the queued filing with id.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	for i, d := range items {
		if d.ID == id {
			return q.save(ctx, append(items[:i], items[i+1:]...))
		}
	}
	return errors.NewNotFound(id)
}

func (q *Queue) load(ctx context.Context) []Deferred {
	var items []Deferred
	if _, err := kv.LoadJSON(ctx, q.kv, DeferredKey, &items); err != nil {
		q.log.Warn().Err(err).Msg("deferred queue unreadable, treating as empty")
		return nil
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
	return items
}

func (q *Queue) save(ctx context.Context, items []Deferred) error {
	if len(items) == 0 {
		items = []Deferred{}
	}
	if err := kv.SaveJSON(ctx, q.kv, DeferredKey, items); err != nil {
		return errors.NewStorageUnavailable(q.kv.Name(), err)
	}
	return nil
}
