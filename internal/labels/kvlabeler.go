package labels

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/hpungsan/casefile/internal/kv"
)

const labelsPrefix = "labels:"

// KVLabeler persists labels per item in a kv store. It stands in for the
// host's label surface when casefile runs without one (CLI, MCP).
type KVLabeler struct {
	kv kv.Store
}

// NewKVLabeler creates a KVLabeler.
func NewKVLabeler(store kv.Store) *KVLabeler {
	return &KVLabeler{kv: store}
}

func (l *KVLabeler) Labels(ctx context.Context, itemKey string) ([]string, error) {
	var names []string
	if _, err := kv.LoadJSON(ctx, l.kv, labelsPrefix+itemKey, &names); err != nil {
		var corrupt *kv.CorruptValueError
		if errors.As(err, &corrupt) {
			return nil, nil
		}
		return nil, err
	}
	return names, nil
}

func (l *KVLabeler) Add(ctx context.Context, itemKey, label string) error {
	names, err := l.Labels(ctx, itemKey)
	if err != nil {
		return err
	}
	for _, n := range names {
		if strings.EqualFold(n, label) {
			return nil
		}
	}
	names = append(names, label)
	sort.Strings(names)
	return kv.SaveJSON(ctx, l.kv, labelsPrefix+itemKey, names)
}

func (l *KVLabeler) Remove(ctx context.Context, itemKey, label string) error {
	names, err := l.Labels(ctx, itemKey)
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if !strings.EqualFold(n, label) {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(names) {
		return nil
	}
	if len(kept) == 0 {
		return l.kv.Remove(ctx, labelsPrefix+itemKey)
	}
	return kv.SaveJSON(ctx, l.kv, labelsPrefix+itemKey, kept)
}
