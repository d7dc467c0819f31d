// Package meta carries request-scoped search metadata within a
// context.Context: the request ID, priority, and facts accumulated while
// a search works its way through cache, budget, and provider failover.
// The gateway copies the accumulated values into SearchResults.Metadata.
package meta

import (
	"context"
	"fmt"
	"sync"
)

// metadataKey is the private key type used for context.WithValue.
// A private type prevents collisions with other context keys.
type metadataKey struct{}

// Metadata holds the key-value pairs for one search request.
type Metadata struct {
	mu   sync.RWMutex
	data map[string]any
}

// Well-known metadata keys set by the gateway.
const (
	KeyRequestID          = "request_id"
	KeyPriority           = "priority"
	KeyAttemptedProviders = "attempted_providers"
	KeyRetries            = "retries"
)

// New creates a new, empty Metadata store.
func New() *Metadata {
	return &Metadata{data: make(map[string]any)}
}

// Set adds or updates a key-value pair.
func (m *Metadata) Set(key string, value any) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]any)
	}
	m.data[key] = value
}

// Get retrieves a value by key. The boolean reports whether the key was
// present.
func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

// AppendString appends value to the string slice stored under key,
// creating it if absent. Used for the attempted-provider trail.
func (m *Metadata) AppendString(key, value string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]any)
	}
	existing, _ := m.data[key].([]string)
	m.data[key] = append(existing, value)
}

// Values returns a copy of all key-value pairs.
func (m *Metadata) Values() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// WithContext returns a context derived from ctx carrying the metadata.
func (m *Metadata) WithContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if m == nil {
		return ctx
	}
	return context.WithValue(ctx, metadataKey{}, m)
}

// FromContext extracts the *Metadata from ctx. A missing or nil value
// yields a fresh empty Metadata so callers never receive nil.
func FromContext(ctx context.Context) *Metadata {
	if ctx == nil {
		return New()
	}
	if md, ok := ctx.Value(metadataKey{}).(*Metadata); ok && md != nil {
		return md
	}
	return New()
}

// Get retrieves a typed value from the metadata stored in ctx.
func Get[T any](ctx context.Context, key string) (T, error) {
	var zero T
	raw, ok := FromContext(ctx).Get(key)
	if !ok {
		return zero, fmt.Errorf("meta: key %q not found in context metadata", key)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("meta: value for key %q has type %T, want %T", key, raw, zero)
	}
	return typed, nil
}
