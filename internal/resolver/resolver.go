// Package resolver decides whether the open email is unfiled, filed, or
// filed to a document that has since been deleted.
//
// Evidence is consulted in a fixed priority order: the filed-status cache
// (by conversation id, then by subject), the local filing record, the remote
// authority. The local status label is read independently and an "Unfiled"
// label overrides every other finding. A Filed result is confirmed with an
// existence probe on its documents.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/filedcache"
	"github.com/hpungsan/casefile/internal/filing"
	"github.com/hpungsan/casefile/internal/labels"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/textmatch"
)

// State is the resolved filing state of an email.
type State string

const (
	StateUnfiled State = "unfiled"
	StateFiled   State = "filed"
	StateDeleted State = "deleted"
	// StateUnknown: no local evidence and the remote could not answer.
	StateUnknown State = "unknown"
)

// Evidence sources.
const (
	SourceNone   = "none"
	SourceCache  = "cache"
	SourceRecord = "record"
	SourceRemote = "remote"
	SourceLabel  = "label"
	SourcePrior  = "prior"
)

// Resolution is the outcome of one resolution pass.
type Resolution struct {
	ItemKey    string       `json:"itemKey"`
	State      State        `json:"state"`
	Override   bool         `json:"override,omitempty"` // user marked "don't file"
	Source     string       `json:"source"`
	CaseID     string       `json:"caseId,omitempty"`
	DocumentID string       `json:"documentId,omitempty"`
	CaseName   string       `json:"caseName,omitempty"`
	CaseKey    string       `json:"caseKey,omitempty"`
	Labels     labels.State `json:"labels"`
	Notes      []string     `json:"notes,omitempty"`
}

func (r *Resolution) note(s string) { r.Notes = append(r.Notes, s) }

// Resolver resolves filing state.
type Resolver struct {
	cache   *filedcache.Cache
	records *filing.Records
	remote  remote.Authority
	labels  *labels.Toggler
	now     func() time.Time
	log     zerolog.Logger

	mu    sync.Mutex
	prior map[string]Resolution
}

// Deps are the collaborators of a Resolver.
type Deps struct {
	Cache   *filedcache.Cache
	Records *filing.Records
	Remote  remote.Authority
	Labels  *labels.Toggler
	Now     func() time.Time
	Logger  zerolog.Logger
}

// New creates a Resolver. A nil Remote is treated as remote.Offline.
func New(d Deps) *Resolver {
	if d.Remote == nil {
		d.Remote = remote.Offline{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Resolver{
		cache:   d.Cache,
		records: d.Records,
		remote:  d.Remote,
		labels:  d.Labels,
		now:     d.Now,
		log:     d.Logger.With().Str("component", "resolver").Logger(),
		prior:   make(map[string]Resolution),
	}
}

// Resolve runs one resolution pass for item. It never fails: unreachable
// collaborators degrade the answer to StateUnknown at worst.
func (r *Resolver) Resolve(ctx context.Context, item CurrentItemContext) Resolution {
	res := Resolution{ItemKey: item.Key(), State: StateUnknown, Source: SourceNone}

	r.fromLocal(ctx, item, &res)
	if res.Source == SourceNone {
		r.fromRemote(ctx, item, &res)
	}
	r.applyLabels(ctx, item, &res)
	if res.State == StateFiled && !res.Override {
		r.probe(ctx, item, &res)
	}

	r.mu.Lock()
	if res.State != StateUnknown {
		r.prior[res.ItemKey] = res
	}
	r.mu.Unlock()

	r.log.Debug().
		Str("item", res.ItemKey).
		Str("state", string(res.State)).
		Str("source", res.Source).
		Bool("override", res.Override).
		Msg("resolved")
	return res
}

// Forget drops the remembered state of itemKey so a transient remote failure
// can no longer keep it Filed.
func (r *Resolver) Forget(itemKey string) {
	r.mu.Lock()
	delete(r.prior, itemKey)
	r.mu.Unlock()
}

// fromLocal consults the cache, then the filing record.
func (r *Resolver) fromLocal(ctx context.Context, item CurrentItemContext, res *Resolution) {
	if e, src, ok := r.cache.Lookup(ctx, item.ConversationID, item.Subject); ok {
		if subjectsMatch(e.Subject, item.Subject) {
			res.State, res.Source = StateFiled, SourceCache
			res.CaseID, res.DocumentID, res.CaseName, res.CaseKey = e.CaseID, e.DocumentID, e.CaseName, e.CaseKey
			if src == filedcache.SourceSubject {
				res.note("cache hit by subject")
			}
			return
		}
		r.log.Info().Str("item", res.ItemKey).Msg("cached subject differs, ignoring stale entry")
		res.note("stale cache entry ignored")
	}

	if rec, ok := r.records.Get(ctx, res.ItemKey); ok {
		res.State, res.Source = StateFiled, SourceRecord
		res.CaseID, res.DocumentID = rec.CaseID, rec.DocumentID
		r.backfill(ctx, item, filedcache.Entry{CaseID: rec.CaseID, DocumentID: rec.DocumentID, FiledAt: rec.FiledAt})
	}
}

// fromRemote asks the authority. NOT_FOUND is definitive; any other failure
// leaves the state unknown but never downgrades a known Filed.
func (r *Resolver) fromRemote(ctx context.Context, item CurrentItemContext, res *Resolution) {
	f, err := r.remote.FindFiling(ctx, item.ConversationID, item.Subject)
	switch {
	case err == nil:
		res.State, res.Source = StateFiled, SourceRemote
		res.CaseID, res.DocumentID, res.CaseName, res.CaseKey = f.CaseID, f.DocumentID, f.CaseName, f.CaseKey
		r.backfill(ctx, item, filedcache.Entry{
			CaseID:     f.CaseID,
			DocumentID: f.DocumentID,
			CaseName:   f.CaseName,
			CaseKey:    f.CaseKey,
			FiledAt:    f.FiledAt,
		})
	case errors.Is(err, errors.ErrNotFound):
		res.State, res.Source = StateUnfiled, SourceRemote
	default:
		r.log.Warn().Err(err).Str("item", res.ItemKey).Msg("remote status unavailable")
		res.note("remote unavailable")
		r.mu.Lock()
		prev, ok := r.prior[res.ItemKey]
		r.mu.Unlock()
		if ok && prev.State == StateFiled {
			res.State, res.Source = StateFiled, SourcePrior
			res.CaseID, res.DocumentID, res.CaseName, res.CaseKey = prev.CaseID, prev.DocumentID, prev.CaseName, prev.CaseKey
		}
	}
}

func (r *Resolver) backfill(ctx context.Context, item CurrentItemContext, e filedcache.Entry) {
	key := item.CacheKey()
	if key == "" {
		return
	}
	e.Subject = item.Subject
	if e.FiledAt == 0 {
		e.FiledAt = r.now().UnixMilli()
	}
	if err := r.cache.Put(ctx, key, e); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache backfill failed")
	}
}

// applyLabels reads the status labels. An inconsistent pair is healed; an
// "Unfiled" label overrides the evidence; a lone "Filed" label stands in for
// missing evidence.
func (r *Resolver) applyLabels(ctx context.Context, item CurrentItemContext, res *Resolution) {
	if r.labels == nil {
		return
	}
	st, err := r.labels.Read(ctx, res.ItemKey)
	if err != nil {
		r.log.Warn().Err(err).Str("item", res.ItemKey).Msg("label read failed")
		return
	}

	if st.Inconsistent() {
		target := ""
		if res.State == StateFiled {
			target = labels.Filed
		}
		r.log.Info().Str("item", res.ItemKey).Str("target", target).Msg("both status labels present, healing")
		r.labels.Apply(ctx, res.ItemKey, target)
		res.note("inconsistent labels healed")
		res.Labels = labels.StateFor(target)
		return
	}

	res.Labels = st
	switch {
	case st.Unfiled:
		res.Override = true
		res.State = StateUnfiled
		res.Source = SourceLabel
	case st.Filed && res.State == StateUnknown:
		res.State, res.Source = StateFiled, SourceLabel
	case st.Filed && res.State == StateUnfiled:
		// The authority says not filed; the label is left over.
		r.labels.Apply(ctx, res.ItemKey, "")
		res.Labels = labels.State{}
		res.note("stale filed label removed")
	}
}

// probe confirms a Filed result. If every referenced document is gone the
// item becomes Deleted and its local traces are cleared.
func (r *Resolver) probe(ctx context.Context, item CurrentItemContext, res *Resolution) {
	ids := r.referencedDocuments(ctx, item, res)
	if len(ids) == 0 {
		return
	}

	for _, id := range ids {
		exists, err := r.remote.DocumentExists(ctx, id)
		if err != nil {
			// Existence unknown; keep Filed.
			r.log.Debug().Err(err).Str("document", id).Msg("existence probe failed")
			return
		}
		if exists {
			return
		}
	}

	r.log.Info().Str("item", res.ItemKey).Strs("documents", ids).Msg("filed documents no longer exist")
	res.State = StateDeleted
	res.note("referenced documents deleted remotely")
	r.ClearLocal(ctx, item)
	if res.Labels.Filed {
		r.labels.Apply(ctx, res.ItemKey, "")
		res.Labels = labels.State{}
	}
}

// referencedDocuments collects the distinct document ids known for the item.
func (r *Resolver) referencedDocuments(ctx context.Context, item CurrentItemContext, res *Resolution) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(res.DocumentID)
	if rec, ok := r.records.Get(ctx, res.ItemKey); ok {
		add(rec.DocumentID)
	}
	if e, ok := r.cache.Get(ctx, item.ConversationID); ok {
		add(e.DocumentID)
	}
	if e, ok := r.cache.GetBySubject(ctx, item.Subject); ok && subjectsMatch(e.Subject, item.Subject) {
		add(e.DocumentID)
	}
	return ids
}

// ClearLocal removes the cache entries and filing record of item.
func (r *Resolver) ClearLocal(ctx context.Context, item CurrentItemContext) {
	keys := []string{}
	if item.ConversationID != "" {
		keys = append(keys, item.ConversationID)
	}
	if k := filedcache.SubjectKey(item.Subject); k != "" {
		keys = append(keys, k)
	}
	r.cache.Remove(ctx, keys...)
	if err := r.records.Clear(ctx, item.Key()); err != nil {
		r.log.Warn().Err(err).Str("item", item.Key()).Msg("clearing filing record failed")
	}
	r.Forget(item.Key())
}

// subjectsMatch compares normalized subjects. An entry without a subject
// matches anything.
func subjectsMatch(cached, current string) bool {
	if cached == "" {
		return true
	}
	return textmatch.NormalizeSubject(cached) == textmatch.NormalizeSubject(current)
}
