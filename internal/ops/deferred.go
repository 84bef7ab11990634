package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/casefile/internal/dupe"
	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/resolver"
)

// DeferredListOutput lists deferred filings.
type DeferredListOutput struct {
	Items []dupe.Deferred `json:"items"`
	Total int             `json:"total"`
}

// ListDeferred returns filings waiting for confirmation, oldest first.
func (s *Service) ListDeferred(ctx context.Context) (*DeferredListOutput, error) {
	items := s.deferred.List(ctx)
	if items == nil {
		items = []dupe.Deferred{}
	}
	return &DeferredListOutput{Items: items, Total: len(items)}, nil
}

// ConfirmDeferred executes a deferred filing as a new version of the
// existing document. If that document is gone, a new document is created.
func (s *Service) ConfirmDeferred(ctx context.Context, id string) (*FileOutput, error) {
	d, err := s.lookupDeferred(ctx, id)
	if err != nil {
		return nil, err
	}

	var doc remote.Document
	outcome := dupe.CreateVersion
	if d.DocumentID != "" {
		doc, err = s.remote.CreateVersion(ctx, remote.CreateVersionRequest{
			CaseID:         d.CaseID,
			DocumentID:     d.DocumentID,
			Subject:        d.Subject,
			ConversationID: d.ConversationID,
		})
	}
	if d.DocumentID == "" || errors.Is(err, errors.ErrNotFound) {
		s.log.Info().Str("deferred", d.ID).Str("document", d.DocumentID).Msg("existing document gone, creating a new one")
		outcome = dupe.CreateDocument
		doc, err = s.remote.CreateDocument(ctx, remote.CreateDocumentRequest{
			CaseID:          d.CaseID,
			Subject:         d.Subject,
			ConversationID:  d.ConversationID,
			SenderAddress:   d.SenderAddress,
			AttachmentNames: d.AttachmentNames,
		})
	}
	if err != nil {
		return nil, err
	}

	rec, toggle, err := s.completeFiling(ctx, itemFromDeferred(d), d.CaseID, "", "", doc)
	if err != nil {
		return nil, err
	}
	if err := s.deferred.Remove(ctx, d.ID); err != nil {
		s.log.Warn().Err(err).Str("deferred", d.ID).Msg("removing confirmed filing from queue failed")
	}

	return &FileOutput{
		Filed:    true,
		Decision: dupe.Decision{Outcome: outcome, Policy: s.policy, CaseID: d.CaseID},
		Document: &doc,
		Record:   &rec,
		Labels:   &toggle,
	}, nil
}

// DiscardDeferred drops a deferred filing without filing.
func (s *Service) DiscardDeferred(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.NewInvalidRequest("id is required")
	}
	return s.deferred.Remove(ctx, id)
}

func (s *Service) lookupDeferred(ctx context.Context, id string) (dupe.Deferred, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return dupe.Deferred{}, errors.NewInvalidRequest("id is required")
	}
	d, ok := s.deferred.Get(ctx, id)
	if !ok {
		return dupe.Deferred{}, errors.NewNotFound(id)
	}
	return d, nil
}

// itemFromDeferred rebuilds the item context of a deferred filing so the
// confirmed filing lands on the same local identity as the original email.
func itemFromDeferred(d dupe.Deferred) resolver.CurrentItemContext {
	item := resolver.CurrentItemContext{
		ConversationID:  d.ConversationID,
		Subject:         d.Subject,
		SenderAddress:   d.SenderAddress,
		AttachmentNames: d.AttachmentNames,
	}
	if id, ok := strings.CutPrefix(d.ItemKey, "item:"); ok {
		item.ItemID = id
	} else if ts, ok := strings.CutPrefix(d.ItemKey, "ts:"); ok {
		item.CreatedAt = ts
	}
	return item
}
