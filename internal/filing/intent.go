package filing

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/kv"
)

// ComposeIntent is the filing choice made while composing a draft. The send
// handler reads it once at send time.
type ComposeIntent struct {
	CaseID         string `json:"caseId"`
	AutoFileOnSend bool   `json:"autoFileOnSend"`
	BaseCaseID     string `json:"baseCaseId,omitempty"`
	BaseDocumentID string `json:"baseDocumentId,omitempty"`
}

// Intents reads and writes compose intents.
type Intents struct {
	kv  kv.Store
	log zerolog.Logger
}

// NewIntents creates an intent store.
func NewIntents(store kv.Store, log zerolog.Logger) *Intents {
	return &Intents{kv: store, log: log.With().Str("component", "compose_intent").Logger()}
}

// Set stores intent under draftKey.
func (s *Intents) Set(ctx context.Context, draftKey string, intent ComposeIntent) error {
	if strings.TrimSpace(intent.CaseID) == "" {
		return errors.NewInvalidRequest("case_id is required")
	}
	if draftKey == PendingDraftKey {
		s.log.Debug().Msg("draft has no stable key, using pending slot")
	}
	if err := kv.SaveJSON(ctx, s.kv, intentPrefix+draftKey, intent); err != nil {
		return errors.NewStorageUnavailable(s.kv.Name(), err)
	}
	return nil
}

// Get returns the intent stored under draftKey.
func (s *Intents) Get(ctx context.Context, draftKey string) (ComposeIntent, bool) {
	var intent ComposeIntent
	found, err := kv.LoadJSON(ctx, s.kv, intentPrefix+draftKey, &intent)
	if err != nil {
		s.log.Warn().Err(err).Str("draft", draftKey).Msg("compose intent unreadable, ignoring")
		return ComposeIntent{}, false
	}
	if !found || intent.CaseID == "" {
		return ComposeIntent{}, false
	}
	return intent, true
}

// Clear removes the intent stored under draftKey.
func (s *Intents) Clear(ctx context.Context, draftKey string) error {
	if err := s.kv.Remove(ctx, intentPrefix+draftKey); err != nil {
		return errors.NewStorageUnavailable(s.kv.Name(), err)
	}
	return nil
}
