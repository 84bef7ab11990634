package dupe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/kv"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/remote/remotetest"
)

func TestDecide_Table(t *testing.T) {
	doc := &remote.Document{ID: "d1", CaseID: "c1", RevisionNumber: 3}

	tests := []struct {
		existing *remote.Document
		policy   Policy
		want     Outcome
	}{
		{nil, PolicyOff, CreateDocument},
		{nil, PolicyWarn, CreateDocument},
		{nil, PolicyBlock, CreateDocument},
		{doc, PolicyOff, CreateVersion},
		{doc, PolicyWarn, Defer},
		{doc, PolicyBlock, Block},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("existing=%v/%s", tt.existing != nil, tt.policy)
		t.Run(name, func(t *testing.T) {
			d := Decide("c1", tt.existing, tt.policy)
			assert.Equal(t, tt.want, d.Outcome)
			assert.Equal(t, "c1", d.CaseID)
			assert.Equal(t, tt.existing, d.Existing)
			if tt.want == Block || tt.want == Defer {
				assert.NotEmpty(t, d.Message)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
	}{
		{"", PolicyWarn},
		{"off", PolicyOff},
		{" WARN ", PolicyWarn},
		{"Block", PolicyBlock},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParsePolicy("sometimes")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	fake := remotetest.New()
	fake.AddDocument(remote.Document{ID: "d1", CaseID: "c1", Subject: "Quarterly Report"})

	d, err := Evaluate(ctx, fake, PolicyWarn, "c1", "RE: quarterly report")
	require.NoError(t, err)
	assert.Equal(t, Defer, d.Outcome)
	require.NotNil(t, d.Existing)
	assert.Equal(t, "d1", d.Existing.ID)

	d, err = Evaluate(ctx, fake, PolicyWarn, "c2", "Quarterly Report")
	require.NoError(t, err)
	assert.Equal(t, CreateDocument, d.Outcome)

	fake.Err = errors.NewRemoteUnavailable("find document", nil)
	_, err = Evaluate(ctx, fake, PolicyWarn, "c1", "Quarterly Report")
	assert.True(t, errors.Is(err, errors.ErrRemoteUnavailable))
}

func newQueue(maxEntries int) (*Queue, *time.Time) {
	now := time.UnixMilli(1_700_000_000_000)
	q := NewQueue(kv.NewMemory(), maxEntries, zerolog.Nop())
	q.SetClock(func() time.Time { return now })
	return q, &now
}

func TestQueue_AddListRemove(t *testing.T) {
	ctx := context.Background()
	q, now := newQueue(0)

	a, err := q.Add(ctx, Deferred{CaseID: "c1", Subject: "Budget", ItemKey: "item:1"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, now.UnixMilli(), a.CreatedAt)

	*now = now.Add(time.Minute)
	b, err := q.Add(ctx, Deferred{CaseID: "c2", Subject: "Invoice", ItemKey: "item:2"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	list := q.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	got, ok := q.Get(ctx, b.ID)
	require.True(t, ok)
	assert.Equal(t, "Invoice", got.Subject)

	require.NoError(t, q.Remove(ctx, a.ID))
	assert.Len(t, q.List(ctx), 1)

	err = q.Remove(ctx, a.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestQueue_AddRequiresCase(t *testing.T) {
	q, _ := newQueue(0)
	_, err := q.Add(context.Background(), Deferred{Subject: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestQueue_ReplacesSameItemAndCase(t *testing.T) {
	ctx := context.Background()
	q, now := newQueue(0)

	first, err := q.Add(ctx, Deferred{CaseID: "c1", ItemKey: "item:1", Subject: "v1"})
	require.NoError(t, err)
	*now = now.Add(time.Second)
	_, err = q.Add(ctx, Deferred{CaseID: "c1", ItemKey: "item:1", Subject: "v2"})
	require.NoError(t, err)
	_, err = q.Add(ctx, Deferred{CaseID: "c2", ItemKey: "item:1", Subject: "other case"})
	require.NoError(t, err)

	list := q.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "v2", list[0].Subject)
	_, ok := q.Get(ctx, first.ID)
	assert.False(t, ok)
}

func TestQueue_CapDropsOldest(t *testing.T) {
	ctx := context.Background()
	q, now := newQueue(3)

	for i := 0; i < 5; i++ {
		*now = now.Add(time.Second)
		_, err := q.Add(ctx, Deferred{CaseID: fmt.Sprintf("c%d", i)})
		require.NoError(t, err)
	}

	list := q.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "c2", list[0].CaseID)
	assert.Equal(t, "c4", list[2].CaseID)
}

func TestQueue_CorruptIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, DeferredKey, "{nope"))
	q := NewQueue(store, 0, zerolog.Nop())

	assert.Empty(t, q.List(ctx))
	_, err := q.Add(ctx, Deferred{CaseID: "c1"})
	require.NoError(t, err)
	assert.Len(t, q.List(ctx), 1)
}
