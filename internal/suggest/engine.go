// Package suggest ranks candidate cases for one email.
//
// Scoring is additive and deterministic: every signal source contributes a
// fixed or formula-derived number of points plus a human-readable reason, and
// the totals are turned into confidence percentages from the absolute score
// and the separation from the nearest competitor.
package suggest

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/history"
)

// Signal weights.
const (
	WeightThread       = 100
	WeightReference    = 95
	WeightTitleExact   = 90
	WeightTokenOverlap = 60
	WeightPartialTitle = 25
	WeightFuzzyHigh    = 70
	WeightFuzzyMid     = 50
	WeightFuzzyLow     = 30
	WeightBody         = 20
	WeightAttachment   = 15

	WeightSender        = 40
	WeightSenderFresh   = 20
	WeightDomain        = 20
	WeightDomainFresh   = 10
	WeightRecent        = 10
	RecentDecayDays     = 14
	HistoryDecayDays    = 30
	FreshnessDays       = 2
	ReferenceCountScale = 5
)

// Fuzzy similarity bands.
const (
	FuzzyHigh = 0.88
	FuzzyMid  = 0.78
	FuzzyLow  = 0.70
)

// Confidence shape.
const (
	confidenceScoreScale = 120.0
	confidenceSepScale   = 60.0
	confidenceBaseWeight = 0.65
	confidenceSepWeight  = 0.35
)

// Defaults.
const (
	DefaultTopK                = 5
	MaxTopK                    = 50
	DefaultMinConfidence       = 10
	DefaultAutoSelectThreshold = 70
)

// Input is everything known about the email being filed.
type Input struct {
	ConversationKey string
	Subject         string
	BodyExcerpt     string
	AttachmentNames []string
	SenderAddress   string
	Cases           []Case
	// TopK overrides the engine default when > 0.
	TopK int
}

// Suggestion is one ranked candidate.
type Suggestion struct {
	CaseID        string   `json:"caseId"`
	Title         string   `json:"title,omitempty"`
	Score         float64  `json:"score"`
	ConfidencePct int      `json:"confidencePct"`
	Reasons       []string `json:"reasons"`
}

// Result is the ranked list plus the auto-select decision.
type Result struct {
	Suggestions      []Suggestion `json:"suggestions"`
	AutoSelectCaseID string       `json:"autoSelectCaseId,omitempty"`
}

// HistorySource is the read side of the history store.
type HistorySource interface {
	MappedCase(ctx context.Context, conversationKey string) (string, error)
	Stats(ctx context.Context) (*history.Stats, error)
}

// Config configures an Engine.
type Config struct {
	TopK                int
	MinConfidence       int
	AutoSelectThreshold int
	Now                 func() time.Time
	Logger              zerolog.Logger
}

// Engine scores candidate cases.
type Engine struct {
	history HistorySource
	cfg     Config
	log     zerolog.Logger
}

// NewEngine creates an engine. history may be nil, in which case only
// content signals are ever used.
func NewEngine(h HistorySource, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TopK > MaxTopK {
		cfg.TopK = MaxTopK
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.AutoSelectThreshold <= 0 {
		cfg.AutoSelectThreshold = DefaultAutoSelectThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		history: h,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "suggest").Logger(),
	}
}

// Suggest ranks in.Cases using every signal source.
func (e *Engine) Suggest(ctx context.Context, in Input) Result {
	return e.run(ctx, in, true)
}

// SuggestContentOnly ranks in.Cases from the email's own content (reference,
// title, body and attachment matches), ignoring thread, sender, domain and
// recency history.
func (e *Engine) SuggestContentOnly(ctx context.Context, in Input) Result {
	return e.run(ctx, in, false)
}

func (e *Engine) run(ctx context.Context, in Input, useHistory bool) Result {
	tallies, byID := newTallies(in.Cases)
	if len(tallies) == 0 {
		return Result{Suggestions: []Suggestion{}}
	}

	msg := newMessage(in)
	for _, t := range tallies {
		scoreContent(t, msg)
	}

	if useHistory && e.history != nil {
		e.scoreThread(ctx, in.ConversationKey, byID)
		stats, err := e.history.Stats(ctx)
		if err != nil {
			e.log.Warn().Err(err).Msg("history unavailable, skipping history signals")
		} else if stats != nil {
			now := e.cfg.Now()
			scoreSender(byID, stats, msg.sender, now)
			scoreDomain(byID, stats, msg.domain, now)
			scoreRecent(byID, stats.Recent, now)
		}
	}

	topK := e.cfg.TopK
	if in.TopK > 0 {
		topK = min(in.TopK, MaxTopK)
	}
	return finalize(tallies, topK, e.cfg.MinConfidence, e.cfg.AutoSelectThreshold)
}

func (e *Engine) scoreThread(ctx context.Context, conversationKey string, byID map[string]*tally) {
	if conversationKey == "" {
		return
	}
	caseID, err := e.history.MappedCase(ctx, conversationKey)
	if err != nil {
		e.log.Warn().Err(err).Msg("thread mapping lookup failed")
		return
	}
	if t, ok := byID[caseID]; ok {
		t.add(WeightThread, "this conversation was filed to this case before")
	}
}

// tally accumulates the score of one candidate.
type tally struct {
	c       Case
	score   float64
	reasons []string
}

func (t *tally) add(points float64, reason string) {
	if points <= 0 {
		return
	}
	t.score += points
	t.reasons = append(t.reasons, reason)
}

func newTallies(cases []Case) ([]*tally, map[string]*tally) {
	tallies := make([]*tally, 0, len(cases))
	byID := make(map[string]*tally, len(cases))
	for _, c := range cases {
		if c.ID == "" {
			continue
		}
		if _, dup := byID[c.ID]; dup {
			continue
		}
		t := &tally{c: c}
		tallies = append(tallies, t)
		byID[c.ID] = t
	}
	return tallies, byID
}

// finalize sorts, computes confidence, filters and truncates.
func finalize(tallies []*tally, topK, minConfidence, autoSelect int) Result {
	scored := make([]*tally, 0, len(tallies))
	for _, t := range tallies {
		if t.score > 0 {
			scored = append(scored, t)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]Suggestion, 0, len(scored))
	for i, t := range scored {
		conf := confidence(i, scored)
		if conf < minConfidence {
			continue
		}
		out = append(out, Suggestion{
			CaseID:        t.c.ID,
			Title:         t.c.Title,
			Score:         math.Round(t.score*100) / 100,
			ConfidencePct: conf,
			Reasons:       t.reasons,
		})
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	res := Result{Suggestions: out}
	if len(out) > 0 && out[0].ConfidencePct >= autoSelect {
		res.AutoSelectCaseID = out[0].CaseID
	}
	return res
}

// confidence returns the percentage for the candidate at rank i. Rank 0 is
// separated from rank 1; every other rank from rank 0.
func confidence(i int, ranked []*tally) int {
	s := ranked[i].score
	var competitor float64
	if i == 0 {
		if len(ranked) > 1 {
			competitor = ranked[1].score
		}
	} else {
		competitor = ranked[0].score
	}
	base := clamp01(s / confidenceScoreScale)
	sep := clamp01((s - competitor) / confidenceSepScale)
	pct := int(math.Round(100 * (confidenceBaseWeight*base + confidenceSepWeight*sep)))
	return max(0, min(100, pct))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
