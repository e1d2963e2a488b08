// Package content resolves symbolic keys to loaded content values,
// memoizing results and coalescing concurrent loads.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound indicates a key absent from the registry.
	ErrNotFound = errors.New("content key is not registered")
	// ErrLoaderResult indicates a deferred loader returned a value of an
	// unexpected type.
	ErrLoaderResult = errors.New("loader returned unexpected value")
)

// Loader is a deferred computation producing a value for a key. It may
// return the value directly or wrapped in Default, which Resolve unwraps
// transparently.
type Loader[T any] func(ctx context.Context) (any, error)

// Default wraps a loader result whose useful value sits under a single
// default field, as produced by some authoring front ends.
type Default[T any] struct {
	Value T
}

// Entry is one registry definition: a materialized value or a deferred
// loader, never both.
type Entry[T any] struct {
	Value T
	Load  Loader[T]
}

// Value creates a materialized entry.
func Value[T any](v T) Entry[T] {
	return Entry[T]{Value: v}
}

// Deferred creates a lazily loaded entry.
func Deferred[T any](load Loader[T]) Entry[T] {
	return Entry[T]{Load: load}
}

// Option configures a Resolver.
type Option[T any] func(*Resolver[T])

// WithKeyFunc installs a provenance hook run once per materialization:
// it receives the resolved value and the key it was resolved under, and
// returns the value to cache. Structured content uses it to stamp its
// own key.
func WithKeyFunc[T any](fn func(value T, key string) T) Option[T] {
	return func(r *Resolver[T]) {
		r.keyFunc = fn
	}
}

// Resolver memoizes keyed content. Registry definitions and the
// materialized cache are kept separate so ClearCache can drop loaded
// values without losing the definitions.
//
// Concurrent Resolve calls for one unresolved key share a single loader
// invocation; the in-flight marker is recorded per key and cleared only
// on settlement, so a failed load can be retried.
type Resolver[T any] struct {
	mu       sync.Mutex
	registry map[string]Entry[T]
	cache    map[string]T
	inflight map[string]struct{}
	flight   singleflight.Group
	keyFunc  func(value T, key string) T
}

// NewResolver creates an empty resolver.
func NewResolver[T any](opts ...Option[T]) *Resolver[T] {
	r := &Resolver[T]{
		registry: make(map[string]Entry[T]),
		cache:    make(map[string]T),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register merges entries into the registry. A later entry overwrites
// an earlier one under the same key, but an already-materialized cache
// value for that key is kept until ClearCache.
func (r *Resolver[T]) Register(entries map[string]Entry[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range entries {
		r.registry[key] = entry
	}
}

// Has reports whether the key is registered, independent of whether it
// has been resolved yet.
func (r *Resolver[T]) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registry[key]
	return ok
}

// Resolve returns the value for key. Materialized keys return
// immediately; unresolved deferred keys run their loader once, with
// concurrent callers sharing the result or the failure.
func (r *Resolver[T]) Resolve(ctx context.Context, key string) (T, error) {
	var zero T

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	entry, ok := r.registry[key]
	r.mu.Unlock()
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	if entry.Load == nil {
		return r.materialize(key, entry.Value), nil
	}

	result, err, _ := r.flight.Do(key, func() (any, error) {
		r.mu.Lock()
		// A racing call may have materialized the key between the cache
		// check and joining the flight.
		if cached, ok := r.cache[key]; ok {
			r.mu.Unlock()
			return cached, nil
		}
		r.inflight[key] = struct{}{}
		r.mu.Unlock()

		defer func() {
			r.mu.Lock()
			delete(r.inflight, key)
			r.mu.Unlock()
		}()

		ctx, span := otel.Tracer("fabula/content").Start(ctx, "content.load")
		span.SetAttributes(attribute.String("content.key", key))
		defer span.End()

		raw, err := entry.Load(ctx)
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("load %q: %w", key, err)
		}
		value, err := unwrap[T](key, raw)
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		return r.materialize(key, value), nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Preload resolves the given keys, or every unresolved deferred key when
// none are given. It fails on the first failure; partial progress is
// kept in the cache.
func (r *Resolver[T]) Preload(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		r.mu.Lock()
		for key, entry := range r.registry {
			if entry.Load == nil {
				continue
			}
			if _, cached := r.cache[key]; cached {
				continue
			}
			if _, pending := r.inflight[key]; pending {
				continue
			}
			keys = append(keys, key)
		}
		r.mu.Unlock()
		sort.Strings(keys)
	}
	for _, key := range keys {
		if _, err := r.Resolve(ctx, key); err != nil {
			return fmt.Errorf("preload: %w", err)
		}
	}
	return nil
}

// ClearCache drops materialized values and forgets in-flight loads.
// Registry definitions are retained.
func (r *Resolver[T]) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]T)
	for key := range r.inflight {
		r.flight.Forget(key)
	}
}

func (r *Resolver[T]) materialize(key string, value T) T {
	if r.keyFunc != nil {
		value = r.keyFunc(value, key)
	}
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
	return value
}

func unwrap[T any](key string, raw any) (T, error) {
	var zero T
	switch v := raw.(type) {
	case Default[T]:
		return v.Value, nil
	case T:
		return v, nil
	default:
		return zero, fmt.Errorf("%w: key %q yielded %T", ErrLoaderResult, key, raw)
	}
}
