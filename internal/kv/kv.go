// Package kv provides the interchangeable key-value backends that hold all of
// casefile's persisted state, plus probing, tier fallback and key namespacing.
//
// Every backend stores string values (JSON documents) under string keys and is
// used uniformly through Get, Set and Remove.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is a string key-value backend.
type Store interface {
	// Name identifies the backend in logs ("runtime", "roaming", "local", "memory").
	Name() string
	// Get returns the stored value; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Limited is implemented by backends with a hard per-value size ceiling.
type Limited interface {
	MaxValueBytes() int
}

// Pinger is implemented by backends that can report availability up front.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MaxValueBytes returns the per-value ceiling of s, or 0 when unbounded.
func MaxValueBytes(s Store) int {
	if l, ok := s.(Limited); ok {
		return l.MaxValueBytes()
	}
	return 0
}

// CorruptValueError reports a stored value that could not be decoded.
// Callers treat it as an empty value.
type CorruptValueError struct {
	Key string
	Err error
}

func (e *CorruptValueError) Error() string {
	return fmt.Sprintf("corrupt value at %q: %v", e.Key, e.Err)
}

func (e *CorruptValueError) Unwrap() error { return e.Err }

// LoadJSON reads key and decodes it into dest.
// Returns false with a *CorruptValueError when the stored value is unparsable.
func LoadJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, &CorruptValueError{Key: key, Err: err}
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(data))
}
