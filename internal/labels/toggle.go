package labels

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for the verification loop.
const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 250 * time.Millisecond
)

// Action is what the toggle loop does after an observation.
type Action int

const (
	// ActionDone: the observed labels match the target.
	ActionDone Action = iota
	// ActionReapply: mismatch, attempts left; re-apply and observe again.
	ActionReapply
	// ActionGiveUp: mismatch and no attempts left; keep the optimistic state.
	ActionGiveUp
)

// Toggle is the state of one label change being verified.
type Toggle struct {
	Target      string `json:"target"` // Filed, Unfiled or "" for none
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	Observed    State  `json:"observed"`
	Converged   bool   `json:"converged"`
}

// NewToggle starts a toggle toward target.
func NewToggle(target string, maxAttempts int) *Toggle {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Toggle{Target: target, MaxAttempts: maxAttempts}
}

// Observe records one read-back and returns the next action.
func (t *Toggle) Observe(s State) Action {
	t.Observed = s
	t.Attempt++
	if s == StateFor(t.Target) {
		t.Converged = true
		return ActionDone
	}
	if t.Attempt >= t.MaxAttempts {
		return ActionGiveUp
	}
	return ActionReapply
}

// Toggler applies status labels and verifies them with a bounded loop.
// When verification never converges it remembers the intended state and
// reports it from Read until a later Apply converges.
type Toggler struct {
	labeler     Labeler
	maxAttempts int
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration)
	log         zerolog.Logger

	mu         sync.Mutex
	optimistic map[string]State
}

// NewToggler creates a Toggler.
func NewToggler(l Labeler, maxAttempts int, delay time.Duration, log zerolog.Logger) *Toggler {
	if delay < 0 {
		delay = DefaultDelay
	}
	return &Toggler{
		labeler:     l,
		maxAttempts: maxAttempts,
		delay:       delay,
		sleep:       sleepCtx,
		log:         log.With().Str("component", "labels").Logger(),
		optimistic:  make(map[string]State),
	}
}

// SetSleep replaces the wait between steps.
func (t *Toggler) SetSleep(sleep func(ctx context.Context, d time.Duration)) {
	t.sleep = sleep
}

// Apply makes target the only status label of itemKey: both labels are
// cleared, then target is added, then the result is read back and
// re-applied until it matches or attempts run out. Never fails; host errors
// are logged and count as a mismatch.
func (t *Toggler) Apply(ctx context.Context, itemKey, target string) Toggle {
	tg := NewToggle(target, t.maxAttempts)

	t.write(ctx, itemKey, target, State{}, true)
	for {
		t.sleep(ctx, t.delay)
		if ctx.Err() != nil {
			break
		}
		observed, err := Read(ctx, t.labeler, itemKey)
		if err != nil {
			t.log.Warn().Err(err).Str("item", itemKey).Msg("label read-back failed")
			observed = State{Filed: true, Unfiled: true}
		}
		switch tg.Observe(observed) {
		case ActionDone:
			t.mu.Lock()
			delete(t.optimistic, itemKey)
			t.mu.Unlock()
			return *tg
		case ActionReapply:
			t.write(ctx, itemKey, target, observed, false)
			continue
		}
		break
	}

	t.log.Info().
		Str("item", itemKey).
		Str("target", target).
		Int("attempts", tg.Attempt).
		Msg("label change not confirmed, keeping optimistic state")
	t.mu.Lock()
	t.optimistic[itemKey] = StateFor(target)
	t.mu.Unlock()
	return *tg
}

// Read returns the label state of itemKey, preferring the optimistic state
// left by an unconfirmed Apply.
func (t *Toggler) Read(ctx context.Context, itemKey string) (State, error) {
	t.mu.Lock()
	s, ok := t.optimistic[itemKey]
	t.mu.Unlock()
	if ok {
		return s, nil
	}
	return Read(ctx, t.labeler, itemKey)
}

// write removes status labels other than target (both when clearAll),
// waits, then adds target if it is missing.
func (t *Toggler) write(ctx context.Context, itemKey, target string, current State, clearAll bool) {
	want := StateFor(target)
	if clearAll || (current.Filed && !want.Filed) {
		t.logErr(t.labeler.Remove(ctx, itemKey, Filed), itemKey, "remove")
	}
	if clearAll || (current.Unfiled && !want.Unfiled) {
		t.logErr(t.labeler.Remove(ctx, itemKey, Unfiled), itemKey, "remove")
	}
	if target == "" {
		return
	}
	t.sleep(ctx, t.delay)
	has := (want.Filed && current.Filed) || (want.Unfiled && current.Unfiled)
	if clearAll || !has {
		t.logErr(t.labeler.Add(ctx, itemKey, target), itemKey, "add")
	}
}

func (t *Toggler) logErr(err error, itemKey, op string) {
	if err != nil {
		t.log.Warn().Err(err).Str("item", itemKey).Str("op", op).Msg("label update failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
