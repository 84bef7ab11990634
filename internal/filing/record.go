package filing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/kv"
)

// Record is the local record that an email was filed.
// A cleared record is kept as {"sent": false}; it is never deleted.
type Record struct {
	Sent           bool   `json:"sent"`
	CaseID         string `json:"caseId,omitempty"`
	DocumentID     string `json:"documentId,omitempty"`
	RevisionNumber int    `json:"revisionNumber,omitempty"`
	RecordID       string `json:"recordId,omitempty"`
	FiledAt        int64  `json:"filedAt,omitempty"` // unix millis
}

// Records reads and writes filing records.
type Records struct {
	kv  kv.Store
	now func() time.Time
	log zerolog.Logger
}

// NewRecords creates a record store.
func NewRecords(store kv.Store, log zerolog.Logger) *Records {
	return &Records{
		kv:  store,
		now: time.Now,
		log: log.With().Str("component", "filing").Logger(),
	}
}

// SetClock overrides the time source.
func (r *Records) SetClock(now func() time.Time) { r.now = now }

// Get returns the record of itemKey. ok is false when the email has no
// active record (absent, cleared or unreadable).
func (r *Records) Get(ctx context.Context, itemKey string) (Record, bool) {
	raw, found, err := r.kv.Get(ctx, recordPrefix+itemKey)
	if err != nil || !found {
		return Record{}, false
	}
	rec, err := DecodeRecord([]byte(raw))
	if err != nil {
		r.log.Warn().Err(err).Str("item", itemKey).Msg("filing record unreadable, ignoring")
		return Record{}, false
	}
	if !rec.Sent {
		return Record{}, false
	}
	return rec, true
}

// MarkFiled writes an active record for itemKey. RecordID and FiledAt are
// filled in when empty.
func (r *Records) MarkFiled(ctx context.Context, itemKey string, rec Record) (Record, error) {
	if strings.TrimSpace(itemKey) == "" {
		return Record{}, errors.NewInvalidRequest("item key is required")
	}
	if rec.CaseID == "" {
		return Record{}, errors.NewInvalidRequest("case_id is required")
	}
	now := r.now()
	rec.Sent = true
	if rec.FiledAt == 0 {
		rec.FiledAt = now.UnixMilli()
	}
	if rec.RecordID == "" {
		id, err := generateULID(now)
		if err != nil {
			return Record{}, errors.NewInternal(err)
		}
		rec.RecordID = id
	}
	if err := kv.SaveJSON(ctx, r.kv, recordPrefix+itemKey, rec); err != nil {
		return Record{}, errors.NewStorageUnavailable(r.kv.Name(), err)
	}
	return rec, nil
}

// Clear overwrites the record of itemKey with the sent=false sentinel.
func (r *Records) Clear(ctx context.Context, itemKey string) error {
	data, _ := json.Marshal(Record{Sent: false})
	if err := r.kv.Set(ctx, recordPrefix+itemKey, string(data)); err != nil {
		return errors.NewStorageUnavailable(r.kv.Name(), err)
	}
	return nil
}
