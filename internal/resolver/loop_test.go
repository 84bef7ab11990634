package resolver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/remote"
)

func TestTracker_DedupAndStale(t *testing.T) {
	var tr Tracker

	a, ok := tr.Begin("item:a")
	require.True(t, ok)
	_, ok = tr.Begin("item:a")
	assert.False(t, ok, "same key is skipped")
	assert.True(t, tr.IsCurrent(a))

	b, ok := tr.Begin("item:b")
	require.True(t, ok)
	assert.False(t, tr.IsCurrent(a), "older pass is stale")
	assert.True(t, tr.IsCurrent(b))

	// Switching back is a new pass, and the first ticket stays stale.
	a2, ok := tr.Begin("item:a")
	require.True(t, ok)
	assert.False(t, tr.IsCurrent(a))
	assert.True(t, tr.IsCurrent(a2))

	tr.Reset()
	assert.False(t, tr.IsCurrent(a2))
	_, ok = tr.Begin("item:a")
	assert.True(t, ok, "reset allows the same key again")
}

func TestTracker_ZeroTicketNeverCurrent(t *testing.T) {
	var tr Tracker
	assert.False(t, tr.IsCurrent(Ticket{}))
}

// switchSource is an ItemSource whose current item can be swapped.
type switchSource struct {
	mu   sync.Mutex
	item CurrentItemContext
}

func (s *switchSource) set(item CurrentItemContext) {
	s.mu.Lock()
	s.item = item
	s.mu.Unlock()
}

func (s *switchSource) Current(context.Context) (CurrentItemContext, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.item, !s.item.Empty(), nil
}

// gatedAuthority blocks FindFiling for one conversation until released.
type gatedAuthority struct {
	remote.Offline
	blockConv string
	release   chan struct{}
	mu        sync.Mutex
	calls     int
}

func (g *gatedAuthority) FindFiling(_ context.Context, conversationID, _ string) (remote.Filing, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if conversationID == g.blockConv {
		<-g.release
	}
	return remote.Filing{}, errors.NewNotFound("filing")
}

func (g *gatedAuthority) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type collector struct {
	mu   sync.Mutex
	keys []string
}

func (c *collector) add(item CurrentItemContext, _ Resolution) {
	c.mu.Lock()
	c.keys = append(c.keys, item.Key())
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func startLoop(t *testing.T, auth remote.Authority, src ItemSource, got *collector) (*Loop, chan struct{}) {
	t.Helper()
	f := newFixture(t)
	r := New(Deps{Cache: f.cache, Records: f.records, Remote: auth, Labels: f.toggler, Logger: zerolog.Nop()})
	loop := NewLoop(r, src, time.Hour, got.add, zerolog.Nop())
	changes := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx, changes)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop, changes
}

func TestLoop_DeduplicatesTriggers(t *testing.T) {
	auth := &gatedAuthority{release: make(chan struct{})}
	src := &switchSource{}
	src.set(CurrentItemContext{ItemID: "a", ConversationID: "conv-a", Subject: "Budget"})
	got := &collector{}
	loop, changes := startLoop(t, auth, src, got)

	changes <- struct{}{}
	changes <- struct{}{}

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(got.snapshot()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, auth.callCount())

	loop.Refresh()
	changes <- struct{}{}
	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, auth.callCount())
}

func TestLoop_DiscardsStaleResults(t *testing.T) {
	auth := &gatedAuthority{blockConv: "conv-a", release: make(chan struct{})}
	src := &switchSource{}
	src.set(CurrentItemContext{ItemID: "a", ConversationID: "conv-a", Subject: "Budget"})
	got := &collector{}
	_, changes := startLoop(t, auth, src, got)

	require.Eventually(t, func() bool { return auth.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	src.set(CurrentItemContext{ItemID: "b", ConversationID: "conv-b", Subject: "Invoice"})
	changes <- struct{}{}
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	close(auth.release)
	assert.Never(t, func() bool { return len(got.snapshot()) > 1 }, 150*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"item:b"}, got.snapshot())
}

func TestLoop_NoItemNoPass(t *testing.T) {
	auth := &gatedAuthority{release: make(chan struct{})}
	got := &collector{}
	_, changes := startLoop(t, auth, &switchSource{}, got)

	changes <- struct{}{}
	assert.Never(t, func() bool { return auth.callCount() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, got.snapshot())
}

func TestFileSource_Current(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "current.json")
	src := NewFileSource(path, zerolog.Nop())

	_, ok, err := src.Current(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "missing file means no item")

	require.NoError(t, os.WriteFile(path, []byte(`{"itemId":"m1","conversationId":"c1","subject":"Budget","attachments":["a.pdf"]}`), 0o600))
	got, ok, err := src.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "item:m1", got.Key())
	assert.Equal(t, []string{"a.pdf"}, got.AttachmentNames)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	_, _, err = src.Current(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	require.NoError(t, os.WriteFile(path, nil, 0o600))
	_, ok, err = src.Current(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileSource_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "current.json")
	src := NewFileSource(path, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := src.Watch(ctx)
	require.NoError(t, err)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600))
	select {
	case <-changes:
		t.Fatal("unexpected signal for unrelated file")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte(`{"itemId":"m1"}`), 0o600))
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal")
	}

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	for range changes {
	}
}
