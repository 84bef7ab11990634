// Package dupe decides how a filing proceeds when the target case may
// already hold a document for the same email, and keeps the queue of
// filings deferred for user confirmation.
package dupe

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/remote"
)

// Policy controls what happens when a matching document already exists.
type Policy string

const (
	PolicyOff   Policy = "off"
	PolicyWarn  Policy = "warn"
	PolicyBlock Policy = "block"
)

// ParsePolicy parses a configured policy name. Empty means PolicyWarn.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyWarn, nil
	case PolicyOff, PolicyWarn, PolicyBlock:
		return p, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown duplicate policy %q", s))
	}
}

// Outcome is the result of a duplicate decision.
type Outcome string

const (
	CreateDocument Outcome = "create_document"
	CreateVersion  Outcome = "create_version"
	Block          Outcome = "block"
	Defer          Outcome = "defer"
)

// Decision is an Outcome plus the document it concerns.
type Decision struct {
	Outcome  Outcome          `json:"outcome"`
	Policy   Policy           `json:"policy"`
	CaseID   string           `json:"caseId"`
	Existing *remote.Document `json:"existing,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Decide applies the decision table:
//
//	existing  off             warn        block
//	no        create doc      create doc  create doc
//	yes       create version  defer       block
func Decide(caseID string, existing *remote.Document, policy Policy) Decision {
	d := Decision{CaseID: caseID, Policy: policy, Existing: existing}
	if existing == nil {
		d.Outcome = CreateDocument
		return d
	}
	switch policy {
	case PolicyOff:
		d.Outcome = CreateVersion
	case PolicyBlock:
		d.Outcome = Block
		d.Message = fmt.Sprintf("a document for this email already exists in case %s; filing skipped", caseID)
	default:
		d.Outcome = Defer
		d.Message = fmt.Sprintf("a document for this email already exists in case %s; confirm to add a new version", caseID)
	}
	return d
}

// Evaluate looks up an existing document for subject in caseID and decides.
// A failed lookup is returned as is; filing cannot proceed without it.
func Evaluate(ctx context.Context, auth remote.Authority, policy Policy, caseID, subject string) (Decision, error) {
	doc, found, err := auth.FindDocument(ctx, caseID, subject)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		return Decide(caseID, nil, policy), nil
	}
	return Decide(caseID, &doc, policy), nil
}
