// Package remote is the boundary to the case-management system, the source
// of truth for what has been filed.
package remote

import (
	"context"

	"github.com/hpungsan/casefile/internal/errors"
)

// Filing is the remote answer to "was this email filed, and where".
type Filing struct {
	CaseID       string `json:"caseId"`
	DocumentID   string `json:"documentId"`
	CaseName     string `json:"caseName,omitempty"`
	CaseKey      string `json:"caseKey,omitempty"`
	DocumentName string `json:"documentName,omitempty"`
	Subject      string `json:"subject,omitempty"`
	FiledAt      int64  `json:"filedAt,omitempty"` // unix millis
}

// Document is a document stored under a case.
type Document struct {
	ID             string `json:"id"`
	CaseID         string `json:"caseId"`
	Subject        string `json:"subject"`
	RevisionNumber int    `json:"revisionNumber"`
}

// CreateDocumentRequest uploads an email as a new document of a case.
type CreateDocumentRequest struct {
	CaseID          string   `json:"caseId"`
	Subject         string   `json:"subject"`
	ConversationID  string   `json:"conversationId,omitempty"`
	SenderAddress   string   `json:"senderAddress,omitempty"`
	AttachmentNames []string `json:"attachmentNames,omitempty"`
}

// CreateVersionRequest uploads an email as a new version of a document.
type CreateVersionRequest struct {
	CaseID         string `json:"caseId"`
	DocumentID     string `json:"documentId"`
	Subject        string `json:"subject"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Authority is the remote case-management system.
//
// FindFiling returns a NOT_FOUND CaseError when the email is definitively
// not filed; any other error means the answer is unknown.
type Authority interface {
	FindFiling(ctx context.Context, conversationID, subject string) (Filing, error)
	DocumentExists(ctx context.Context, documentID string) (bool, error)
	FindDocument(ctx context.Context, caseID, subject string) (Document, bool, error)
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (Document, error)
	CreateVersion(ctx context.Context, req CreateVersionRequest) (Document, error)
}

// Offline is the Authority used when no remote is configured. Every call
// fails with REMOTE_UNAVAILABLE, so status resolves from local state only.
type Offline struct{}

func (Offline) FindFiling(context.Context, string, string) (Filing, error) {
	return Filing{}, errors.NewRemoteUnavailable("find filing", nil)
}

func (Offline) DocumentExists(context.Context, string) (bool, error) {
	return false, errors.NewRemoteUnavailable("document exists", nil)
}

func (Offline) FindDocument(context.Context, string, string) (Document, bool, error) {
	return Document{}, false, errors.NewRemoteUnavailable("find document", nil)
}

func (Offline) CreateDocument(context.Context, CreateDocumentRequest) (Document, error) {
	return Document{}, errors.NewRemoteUnavailable("create document", nil)
}

func (Offline) CreateVersion(context.Context, CreateVersionRequest) (Document, error) {
	return Document{}, errors.NewRemoteUnavailable("create version", nil)
}
