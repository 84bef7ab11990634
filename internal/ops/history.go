package ops

import (
	"context"
	"sort"

	"github.com/hpungsan/casefile/internal/history"
)

// HistoryOutput summarizes the stored filing history.
type HistoryOutput struct {
	Conversations int                  `json:"conversations"`
	Senders       int                  `json:"senders"`
	Domains       int                  `json:"domains"`
	Recent        []history.RecentCase `json:"recent"`
	// Stats is the full history, present when requested.
	Stats *history.Stats `json:"stats,omitempty"`
}

// History returns entity counts and the recent cases, most recent first.
func (s *Service) History(ctx context.Context, full bool) (*HistoryOutput, error) {
	stats, err := s.history.Stats(ctx)
	if err != nil {
		return nil, err
	}
	recent := append([]history.RecentCase{}, stats.Recent...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].LastUsedAt > recent[j].LastUsedAt })

	out := &HistoryOutput{
		Conversations: len(stats.Conversations),
		Senders:       len(stats.Senders),
		Domains:       len(stats.Domains),
		Recent:        recent,
	}
	if full {
		out.Stats = stats
	}
	return out, nil
}
