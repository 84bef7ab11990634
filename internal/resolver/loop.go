package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the fixed poll period of a Loop.
const DefaultPollInterval = 500 * time.Millisecond

// ItemSource reports the currently open email. ok is false when nothing is
// open.
type ItemSource interface {
	Current(ctx context.Context) (item CurrentItemContext, ok bool, err error)
}

// ResultFunc receives the resolution of the current item.
type ResultFunc func(item CurrentItemContext, res Resolution)

type loopResult struct {
	ticket Ticket
	item   CurrentItemContext
	res    Resolution
}

// Loop runs resolution passes for the current item on two triggers: a change
// notification and a fixed-interval poll. Both derive the item key afresh
// and share one Tracker, so a key already processed is not resolved again
// and results for an item that is no longer current are dropped.
type Loop struct {
	resolver *Resolver
	source   ItemSource
	interval time.Duration
	onResult ResultFunc
	tracker  Tracker
	log      zerolog.Logger

	results chan loopResult
}

// NewLoop creates a Loop. interval <= 0 uses DefaultPollInterval.
func NewLoop(r *Resolver, src ItemSource, interval time.Duration, onResult ResultFunc, log zerolog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if onResult == nil {
		onResult = func(CurrentItemContext, Resolution) {}
	}
	return &Loop{
		resolver: r,
		source:   src,
		interval: interval,
		onResult: onResult,
		log:      log.With().Str("component", "resolver-loop").Logger(),
		results:  make(chan loopResult),
	}
}

// Refresh forces the next trigger to resolve the current item even if its
// key has not changed, e.g. after it was filed or unfiled.
func (l *Loop) Refresh() { l.tracker.Reset() }

// Run blocks until ctx is done. changes may be nil for poll-only operation.
func (l *Loop) Run(ctx context.Context, changes <-chan struct{}) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.trigger(ctx, "start")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			l.trigger(ctx, "change")
		case <-ticker.C:
			l.trigger(ctx, "poll")
		case r := <-l.results:
			l.deliver(r)
		}
	}
}

// trigger starts a pass for the current item unless it is a duplicate.
func (l *Loop) trigger(ctx context.Context, cause string) {
	item, ok, err := l.source.Current(ctx)
	if err != nil {
		l.log.Warn().Err(err).Str("cause", cause).Msg("reading current item failed")
		return
	}
	if !ok || item.Empty() {
		return
	}

	ticket, ok := l.tracker.Begin(item.Key())
	if !ok {
		return
	}
	l.log.Debug().Str("item", ticket.Key).Str("cause", cause).Msg("resolution started")

	go func() {
		res := l.resolver.Resolve(ctx, item)
		select {
		case l.results <- loopResult{ticket: ticket, item: item, res: res}:
		case <-ctx.Done():
		}
	}()
}

func (l *Loop) deliver(r loopResult) {
	if !l.tracker.IsCurrent(r.ticket) {
		l.log.Debug().Str("item", r.ticket.Key).Msg("stale resolution discarded")
		return
	}
	l.onResult(r.item, r.res)
}
