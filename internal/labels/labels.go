// Package labels manages the two user-visible status labels of an email,
// "Filed" and "Unfiled", on a host that applies label changes asynchronously.
package labels

import (
	"context"
	"strings"
)

// Label names.
const (
	Filed   = "Filed"
	Unfiled = "Unfiled"
)

// Labeler is the host's label surface for one email identified by itemKey.
type Labeler interface {
	Labels(ctx context.Context, itemKey string) ([]string, error)
	Add(ctx context.Context, itemKey, label string) error
	Remove(ctx context.Context, itemKey, label string) error
}

// State is the observed pair of status labels.
type State struct {
	Filed   bool `json:"filed"`
	Unfiled bool `json:"unfiled"`
}

// StateOf builds a State from a label list. Matching is case-insensitive.
func StateOf(names []string) State {
	var s State
	for _, n := range names {
		switch {
		case strings.EqualFold(n, Filed):
			s.Filed = true
		case strings.EqualFold(n, Unfiled):
			s.Unfiled = true
		}
	}
	return s
}

// StateFor returns the State in which target is the only status label.
// An empty target means no status label.
func StateFor(target string) State {
	return State{Filed: target == Filed, Unfiled: target == Unfiled}
}

// Inconsistent reports whether both labels are present.
func (s State) Inconsistent() bool { return s.Filed && s.Unfiled }

// Empty reports whether neither label is present.
func (s State) Empty() bool { return !s.Filed && !s.Unfiled }

// Read returns the current State of itemKey.
func Read(ctx context.Context, l Labeler, itemKey string) (State, error) {
	names, err := l.Labels(ctx, itemKey)
	if err != nil {
		return State{}, err
	}
	return StateOf(names), nil
}
