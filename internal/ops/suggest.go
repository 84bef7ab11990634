package ops

import (
	"context"

	"github.com/hpungsan/casefile/internal/resolver"
	"github.com/hpungsan/casefile/internal/suggest"
)

// SuggestInput contains parameters for the Suggest operation.
type SuggestInput struct {
	Item        resolver.CurrentItemContext
	BodyExcerpt string
	Cases       []suggest.Case
	TopK        int // 0 uses the configured default
	// ContentOnly ignores thread, sender, domain and recency history.
	ContentOnly bool
}

// SuggestOutput contains the ranked suggestions.
type SuggestOutput struct {
	suggest.Result
	ItemKey string `json:"itemKey"`
}

// Suggest ranks the candidate cases for an email. Missing subject, body or
// sender only removes the signals that need them.
func (s *Service) Suggest(ctx context.Context, input SuggestInput) (*SuggestOutput, error) {
	in := suggest.Input{
		ConversationKey: conversationKey(input.Item),
		Subject:         input.Item.Subject,
		BodyExcerpt:     input.BodyExcerpt,
		AttachmentNames: input.Item.AttachmentNames,
		SenderAddress:   input.Item.SenderAddress,
		Cases:           input.Cases,
		TopK:            input.TopK,
	}

	var res suggest.Result
	if input.ContentOnly {
		res = s.engine.SuggestContentOnly(ctx, in)
	} else {
		res = s.engine.Suggest(ctx, in)
	}

	s.log.Debug().
		Int("candidates", len(input.Cases)).
		Int("suggestions", len(res.Suggestions)).
		Str("auto_select", res.AutoSelectCaseID).
		Msg("suggest")
	return &SuggestOutput{Result: res, ItemKey: input.Item.Key()}, nil
}
