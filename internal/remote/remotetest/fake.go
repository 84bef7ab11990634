// Package remotetest provides an in-memory remote.Authority for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/textmatch"
)

// Fake is an in-memory Authority with failure injection and call counters.
type Fake struct {
	mu        sync.Mutex
	filings   map[string]remote.Filing // by conversation id or "subj:" key
	documents map[string]remote.Document
	calls     map[string]int
	nextID    int

	// Err, when set, is returned by every call.
	Err error
	// FindFilingErr, when set, is returned by FindFiling.
	FindFilingErr error
	// ExistsErr, when set, is returned by DocumentExists.
	ExistsErr error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		filings:   make(map[string]remote.Filing),
		documents: make(map[string]remote.Document),
		calls:     make(map[string]int),
	}
}

// AddFiling registers a filing findable by conversation id and subject, and
// its document.
func (f *Fake) AddFiling(conversationID, subject string, fl remote.Filing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl.Subject == "" {
		fl.Subject = subject
	}
	if conversationID != "" {
		f.filings[conversationID] = fl
	}
	if subject != "" {
		f.filings["subj:"+textmatch.NormalizeSubject(subject)] = fl
	}
	if fl.DocumentID != "" {
		if _, ok := f.documents[fl.DocumentID]; !ok {
			f.documents[fl.DocumentID] = remote.Document{ID: fl.DocumentID, CaseID: fl.CaseID, Subject: fl.Subject, RevisionNumber: 1}
		}
	}
}

// AddDocument registers a document.
func (f *Fake) AddDocument(d remote.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.RevisionNumber == 0 {
		d.RevisionNumber = 1
	}
	f.documents[d.ID] = d
}

// DeleteDocument removes a document, as a user of the remote system would.
func (f *Fake) DeleteDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.documents, id)
}

// Document returns a stored document.
func (f *Fake) Document(id string) (remote.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	return d, ok
}

// Calls returns how many times op was invoked ("FindFiling", "DocumentExists",
// "FindDocument", "CreateDocument", "CreateVersion").
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) FindFiling(_ context.Context, conversationID, subject string) (remote.Filing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FindFiling"]++
	if err := f.fail(f.FindFilingErr); err != nil {
		return remote.Filing{}, err
	}
	if fl, ok := f.filings[conversationID]; ok && conversationID != "" {
		return fl, nil
	}
	if fl, ok := f.filings["subj:"+textmatch.NormalizeSubject(subject)]; ok && subject != "" {
		return fl, nil
	}
	return remote.Filing{}, errors.NewNotFound("filing")
}

func (f *Fake) DocumentExists(_ context.Context, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DocumentExists"]++
	if err := f.fail(f.ExistsErr); err != nil {
		return false, err
	}
	_, ok := f.documents[documentID]
	return ok, nil
}

func (f *Fake) FindDocument(_ context.Context, caseID, subject string) (remote.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FindDocument"]++
	if err := f.fail(nil); err != nil {
		return remote.Document{}, false, err
	}
	want := textmatch.NormalizeSubject(subject)
	for _, d := range f.documents {
		if d.CaseID == caseID && textmatch.NormalizeSubject(d.Subject) == want {
			return d, true, nil
		}
	}
	return remote.Document{}, false, nil
}

func (f *Fake) CreateDocument(_ context.Context, req remote.CreateDocumentRequest) (remote.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateDocument"]++
	if err := f.fail(nil); err != nil {
		return remote.Document{}, err
	}
	f.nextID++
	d := remote.Document{ID: fmt.Sprintf("doc-%d", f.nextID), CaseID: req.CaseID, Subject: req.Subject, RevisionNumber: 1}
	f.documents[d.ID] = d
	f.record(req.ConversationID, req.Subject, d)
	return d, nil
}

func (f *Fake) CreateVersion(_ context.Context, req remote.CreateVersionRequest) (remote.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateVersion"]++
	if err := f.fail(nil); err != nil {
		return remote.Document{}, err
	}
	d, ok := f.documents[req.DocumentID]
	if !ok {
		return remote.Document{}, errors.NewNotFound(req.DocumentID)
	}
	d.RevisionNumber++
	f.documents[d.ID] = d
	f.record(req.ConversationID, req.Subject, d)
	return d, nil
}

func (f *Fake) record(conversationID, subject string, d remote.Document) {
	fl := remote.Filing{CaseID: d.CaseID, DocumentID: d.ID, Subject: subject}
	if conversationID != "" {
		f.filings[conversationID] = fl
	}
	if subject != "" {
		f.filings["subj:"+textmatch.NormalizeSubject(subject)] = fl
	}
}

func (f *Fake) fail(specific error) error {
	if f.Err != nil {
		return f.Err
	}
	return specific
}

var _ remote.Authority = (*Fake)(nil)
