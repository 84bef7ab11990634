package labels

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/casefile/internal/kv"
)

func noSleep(context.Context, time.Duration) {}

// laggingLabeler applies writes only after `lag` further reads, like a host
// that propagates label changes asynchronously.
type laggingLabeler struct {
	inner   *KVLabeler
	lag     int
	pending []func()
	adds    int
	removes int
	readErr error
}

func newLagging(lag int) *laggingLabeler {
	return &laggingLabeler{inner: NewKVLabeler(kv.NewMemory()), lag: lag}
}

func (l *laggingLabeler) Labels(ctx context.Context, itemKey string) ([]string, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	if l.lag > 0 {
		l.lag--
	} else {
		for _, apply := range l.pending {
			apply()
		}
		l.pending = nil
	}
	return l.inner.Labels(ctx, itemKey)
}

func (l *laggingLabeler) Add(ctx context.Context, itemKey, label string) error {
	l.adds++
	l.pending = append(l.pending, func() { _ = l.inner.Add(ctx, itemKey, label) })
	return nil
}

func (l *laggingLabeler) Remove(ctx context.Context, itemKey, label string) error {
	l.removes++
	l.pending = append(l.pending, func() { _ = l.inner.Remove(ctx, itemKey, label) })
	return nil
}

// stuckLabeler ignores every write.
type stuckLabeler struct{ state []string }

func (s *stuckLabeler) Labels(context.Context, string) ([]string, error) { return s.state, nil }
func (s *stuckLabeler) Add(context.Context, string, string) error        { return nil }
func (s *stuckLabeler) Remove(context.Context, string, string) error     { return nil }

func TestStateOf(t *testing.T) {
	assert.Equal(t, State{Filed: true}, StateOf([]string{"filed", "Important"}))
	assert.Equal(t, State{Filed: true, Unfiled: true}, StateOf([]string{"Filed", "UNFILED"}))
	assert.True(t, StateOf([]string{"Filed", "Unfiled"}).Inconsistent())
	assert.True(t, StateOf(nil).Empty())
}

func TestToggle_Observe(t *testing.T) {
	tg := NewToggle(Filed, 3)

	assert.Equal(t, ActionReapply, tg.Observe(State{}))
	assert.Equal(t, ActionReapply, tg.Observe(State{Filed: true, Unfiled: true}))
	assert.Equal(t, ActionDone, tg.Observe(State{Filed: true}))
	assert.True(t, tg.Converged)
	assert.Equal(t, 3, tg.Attempt)
}

func TestToggle_GivesUpAtMaxAttempts(t *testing.T) {
	tg := NewToggle(Unfiled, 2)
	assert.Equal(t, ActionReapply, tg.Observe(State{Filed: true}))
	assert.Equal(t, ActionGiveUp, tg.Observe(State{Filed: true}))
	assert.False(t, tg.Converged)
}

func TestToggle_EmptyTarget(t *testing.T) {
	tg := NewToggle("", 1)
	assert.Equal(t, ActionDone, tg.Observe(State{}))
}

func TestKVLabeler(t *testing.T) {
	ctx := context.Background()
	l := NewKVLabeler(kv.NewMemory())

	names, err := l.Labels(ctx, "item:1")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, l.Add(ctx, "item:1", Filed))
	require.NoError(t, l.Add(ctx, "item:1", Filed))
	require.NoError(t, l.Add(ctx, "item:1", "Client"))
	names, _ = l.Labels(ctx, "item:1")
	assert.Equal(t, []string{"Client", "Filed"}, names)

	require.NoError(t, l.Remove(ctx, "item:1", "filed"))
	names, _ = l.Labels(ctx, "item:1")
	assert.Equal(t, []string{"Client"}, names)

	require.NoError(t, l.Remove(ctx, "item:1", "Client"))
	names, _ = l.Labels(ctx, "item:1")
	assert.Empty(t, names)
}

func TestApply_ConvergesImmediately(t *testing.T) {
	ctx := context.Background()
	l := NewKVLabeler(kv.NewMemory())
	require.NoError(t, l.Add(ctx, "i", Unfiled))

	tg := NewToggler(l, 5, 0, zerolog.Nop())
	tg.SetSleep(noSleep)

	res := tg.Apply(ctx, "i", Filed)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Attempt)

	s, err := Read(ctx, l, "i")
	require.NoError(t, err)
	assert.Equal(t, State{Filed: true}, s)
}

func TestApply_AbsorbsPropagationDelay(t *testing.T) {
	ctx := context.Background()
	l := newLagging(2)

	tg := NewToggler(l, 5, 0, zerolog.Nop())
	tg.SetSleep(noSleep)

	res := tg.Apply(ctx, "i", Unfiled)
	assert.True(t, res.Converged)
	assert.Equal(t, 3, res.Attempt)

	s, _ := tg.Read(ctx, "i")
	assert.Equal(t, State{Unfiled: true}, s)
}

func TestApply_GivesUpAndKeepsOptimisticState(t *testing.T) {
	ctx := context.Background()
	l := &stuckLabeler{state: []string{Filed}}

	var sleeps int
	tg := NewToggler(l, 4, time.Hour, zerolog.Nop())
	tg.SetSleep(func(context.Context, time.Duration) { sleeps++ })

	res := tg.Apply(ctx, "i", Unfiled)
	assert.False(t, res.Converged)
	assert.Equal(t, 4, res.Attempt)
	assert.Greater(t, sleeps, 0)

	s, err := tg.Read(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, State{Unfiled: true}, s, "optimistic state reported")

	// The host catching up later clears the override once Apply converges.
	l.state = []string{Unfiled}
	res = tg.Apply(ctx, "i", Unfiled)
	assert.True(t, res.Converged)
}

func TestApply_ReadErrorsCountAsMismatch(t *testing.T) {
	ctx := context.Background()
	l := newLagging(0)
	l.readErr = stderrors.New("host unavailable")

	tg := NewToggler(l, 3, 0, zerolog.Nop())
	tg.SetSleep(noSleep)

	res := tg.Apply(ctx, "i", Filed)
	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Attempt)
}

func TestApply_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tg := NewToggler(&stuckLabeler{}, 100, 0, zerolog.Nop())
	tg.SetSleep(noSleep)

	res := tg.Apply(ctx, "i", Filed)
	assert.False(t, res.Converged)
	assert.Equal(t, 0, res.Attempt)
}
