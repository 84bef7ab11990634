package ops

import (
	"context"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/filing"
)

// DraftRef addresses a draft by its most stable identifiers.
type DraftRef struct {
	ConversationID string
	CreatedAt      string
}

// Key returns the draft's storage key.
func (d DraftRef) Key() string { return filing.DraftKey(d.ConversationID, d.CreatedAt) }

// IntentOutput is a compose intent together with its draft key.
type IntentOutput struct {
	DraftKey string               `json:"draftKey"`
	Found    bool                 `json:"found"`
	Intent   filing.ComposeIntent `json:"intent"`
}

// SetIntent records the filing choice made while composing a draft.
func (s *Service) SetIntent(ctx context.Context, draft DraftRef, intent filing.ComposeIntent) (*IntentOutput, error) {
	caseID, err := requireCaseID(intent.CaseID)
	if err != nil {
		return nil, err
	}
	intent.CaseID = caseID
	if intent.BaseDocumentID != "" && intent.BaseCaseID == "" {
		return nil, errors.NewInvalidRequest("base_case_id is required with base_document_id")
	}
	key := draft.Key()
	if err := s.intents.Set(ctx, key, intent); err != nil {
		return nil, err
	}
	return &IntentOutput{DraftKey: key, Found: true, Intent: intent}, nil
}

// GetIntent returns the intent of a draft. Found is false when none is set.
func (s *Service) GetIntent(ctx context.Context, draft DraftRef) (*IntentOutput, error) {
	key := draft.Key()
	intent, ok := s.intents.Get(ctx, key)
	return &IntentOutput{DraftKey: key, Found: ok, Intent: intent}, nil
}

// ClearIntent removes the intent of a draft.
func (s *Service) ClearIntent(ctx context.Context, draft DraftRef) (*IntentOutput, error) {
	key := draft.Key()
	if err := s.intents.Clear(ctx, key); err != nil {
		return nil, err
	}
	return &IntentOutput{DraftKey: key}, nil
}
