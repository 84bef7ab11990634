package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/casefile/internal/dupe"
	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/filedcache"
	"github.com/hpungsan/casefile/internal/filing"
	"github.com/hpungsan/casefile/internal/labels"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/resolver"
)

// FileInput contains parameters for the File operation.
type FileInput struct {
	Item     resolver.CurrentItemContext
	CaseID   string // required
	CaseName string
	CaseKey  string
}

// FileOutput contains the result of a filing attempt. Blocked and deferred
// filings are outcomes, not errors: Filed is false and Decision says why.
type FileOutput struct {
	Filed    bool             `json:"filed"`
	Decision dupe.Decision    `json:"decision"`
	Document *remote.Document `json:"document,omitempty"`
	Record   *filing.Record   `json:"record,omitempty"`
	Deferred *dupe.Deferred   `json:"deferred,omitempty"`
	Labels   *labels.Toggle   `json:"labels,omitempty"`
}

// File files an email to a case, applying the duplicate policy when the case
// already holds a document with the same subject.
func (s *Service) File(ctx context.Context, input FileInput) (*FileOutput, error) {
	if err := validateItem(input.Item); err != nil {
		return nil, err
	}
	caseID, err := requireCaseID(input.CaseID)
	if err != nil {
		return nil, err
	}

	decision, err := dupe.Evaluate(ctx, s.remote, s.policy, caseID, input.Item.Subject)
	if err != nil {
		return nil, err
	}
	out := &FileOutput{Decision: decision}

	var doc remote.Document
	switch decision.Outcome {
	case dupe.Block:
		s.log.Info().Str("case", caseID).Str("document", decision.Existing.ID).Msg("duplicate filing blocked")
		return out, nil

	case dupe.Defer:
		d, err := s.deferred.Add(ctx, dupe.Deferred{
			CaseID:          caseID,
			DocumentID:      decision.Existing.ID,
			Subject:         input.Item.Subject,
			ConversationID:  input.Item.ConversationID,
			ItemKey:         input.Item.Key(),
			SenderAddress:   input.Item.SenderAddress,
			AttachmentNames: input.Item.AttachmentNames,
		})
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("case", caseID).Str("deferred", d.ID).Msg("duplicate filing deferred for confirmation")
		out.Deferred = &d
		return out, nil

	case dupe.CreateVersion:
		doc, err = s.remote.CreateVersion(ctx, remote.CreateVersionRequest{
			CaseID:         caseID,
			DocumentID:     decision.Existing.ID,
			Subject:        input.Item.Subject,
			ConversationID: input.Item.ConversationID,
		})

	default:
		doc, err = s.remote.CreateDocument(ctx, remote.CreateDocumentRequest{
			CaseID:          caseID,
			Subject:         input.Item.Subject,
			ConversationID:  input.Item.ConversationID,
			SenderAddress:   input.Item.SenderAddress,
			AttachmentNames: input.Item.AttachmentNames,
		})
	}
	if err != nil {
		return nil, err
	}

	rec, toggle, err := s.completeFiling(ctx, input.Item, caseID, input.CaseName, input.CaseKey, doc)
	if err != nil {
		return nil, err
	}
	out.Filed = true
	out.Document = &doc
	out.Record = &rec
	out.Labels = &toggle
	return out, nil
}

// completeFiling records a successful remote filing locally: the filing
// record, the cache entry, history, and the "Filed" label. Only the record
// write can fail the operation; the rest is best-effort and self-heals on
// the next resolution.
func (s *Service) completeFiling(ctx context.Context, item resolver.CurrentItemContext, caseID, caseName, caseKey string, doc remote.Document) (filing.Record, labels.Toggle, error) {
	if doc.ID == "" {
		return filing.Record{}, labels.Toggle{}, errors.NewRemoteUnavailable("file", fmt.Errorf("response has no document id"))
	}
	itemKey := item.Key()

	rec, err := s.records.MarkFiled(ctx, itemKey, filing.Record{
		CaseID:         caseID,
		DocumentID:     doc.ID,
		RevisionNumber: doc.RevisionNumber,
	})
	if err != nil {
		return filing.Record{}, labels.Toggle{}, err
	}

	if key := item.CacheKey(); key != "" {
		err := s.cache.Put(ctx, key, filedcache.Entry{
			CaseID:     caseID,
			DocumentID: doc.ID,
			Subject:    item.Subject,
			CaseName:   caseName,
			CaseKey:    caseKey,
			FiledAt:    rec.FiledAt,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("item", itemKey).Msg("cache update after filing failed")
		}
	}

	if err := s.history.RecordSuccessfulFiling(ctx, caseID, conversationKey(item), item.SenderAddress); err != nil {
		s.log.Warn().Err(err).Str("case", caseID).Msg("history update after filing failed")
	}

	toggle := s.labels.Apply(ctx, itemKey, labels.Filed)
	s.log.Info().
		Str("item", itemKey).
		Str("case", caseID).
		Str("document", doc.ID).
		Int("revision", doc.RevisionNumber).
		Msg("filed")
	return rec, toggle, nil
}
