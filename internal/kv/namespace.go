package kv

import "context"

// Namespaced prefixes every key with "<keyPrefix>:<profile>:" so several
// local profiles can share one backend without colliding.
type Namespaced struct {
	inner  Store
	prefix string
}

// Namespace wraps s.
func Namespace(s Store, keyPrefix, profile string) *Namespaced {
	if keyPrefix == "" {
		keyPrefix = "casefile"
	}
	if profile == "" {
		profile = "default"
	}
	return &Namespaced{inner: s, prefix: keyPrefix + ":" + profile + ":"}
}

// Key returns the fully qualified backend key for key.
func (n *Namespaced) Key(key string) string { return n.prefix + key }

func (n *Namespaced) Name() string { return n.inner.Name() }

func (n *Namespaced) MaxValueBytes() int { return MaxValueBytes(n.inner) }

func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.Key(key))
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.Key(key), value)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.Key(key))
}
