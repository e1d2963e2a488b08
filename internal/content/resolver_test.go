package content

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type doc struct {
	Key  string
	Body string
}

func TestResolveMaterializedValue(t *testing.T) {
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{"greeting": Value("hello")})

	got, err := r.Resolve(context.Background(), "greeting")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver[string]()
	_, err := r.Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveCoalescesConcurrentLoads(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"slow": Deferred[string](func(ctx context.Context) (any, error) {
			calls.Add(1)
			<-release
			return "loaded", nil
		}),
	})

	const workers = 8
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := r.Resolve(context.Background(), "slow")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected loader to run once, ran %d times", got)
	}
	for i, v := range results {
		if v != "loaded" {
			t.Fatalf("worker %d got %q", i, v)
		}
	}
}

func TestResolveUnwrapsDefault(t *testing.T) {
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"wrapped": Deferred[string](func(ctx context.Context) (any, error) {
			return Default[string]{Value: "inner"}, nil
		}),
		"plain": Deferred[string](func(ctx context.Context) (any, error) {
			return "outer", nil
		}),
	})

	for key, want := range map[string]string{"wrapped": "inner", "plain": "outer"} {
		got, err := r.Resolve(context.Background(), key)
		if err != nil {
			t.Fatalf("resolve %q: %v", key, err)
		}
		if got != want {
			t.Fatalf("resolve %q = %q, want %q", key, got, want)
		}
	}
}

func TestResolveRejectsForeignLoaderResult(t *testing.T) {
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"odd": Deferred[string](func(ctx context.Context) (any, error) {
			return 42, nil
		}),
	})

	_, err := r.Resolve(context.Background(), "odd")
	if !errors.Is(err, ErrLoaderResult) {
		t.Fatalf("expected ErrLoaderResult, got %v", err)
	}
}

func TestResolveInjectsKey(t *testing.T) {
	r := NewResolver[*doc](WithKeyFunc(func(d *doc, key string) *doc {
		d.Key = key
		return d
	}))
	r.Register(map[string]Entry[*doc]{
		"intro": Deferred[*doc](func(ctx context.Context) (any, error) {
			return &doc{Body: "once upon a time"}, nil
		}),
		"coda": Value(&doc{Body: "the end"}),
	})

	for _, key := range []string{"intro", "coda"} {
		got, err := r.Resolve(context.Background(), key)
		if err != nil {
			t.Fatalf("resolve %q: %v", key, err)
		}
		if got.Key != key {
			t.Fatalf("expected key %q injected, got %q", key, got.Key)
		}
	}
}

func TestResolveMemoizesSingleValue(t *testing.T) {
	var calls atomic.Int64
	r := NewResolver[*doc]()
	r.Register(map[string]Entry[*doc]{
		"intro": Deferred[*doc](func(ctx context.Context) (any, error) {
			calls.Add(1)
			return &doc{Body: "text"}, nil
		}),
	})

	first, err := r.Resolve(context.Background(), "intro")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), "intro")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatal("expected identical cached value")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one load, got %d", calls.Load())
	}
}

func TestFailedLoadPropagatesAndAllowsRetry(t *testing.T) {
	var calls atomic.Int64
	boom := errors.New("boom")
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"flaky": Deferred[string](func(ctx context.Context) (any, error) {
			if calls.Add(1) == 1 {
				return nil, boom
			}
			return "recovered", nil
		}),
	})

	if _, err := r.Resolve(context.Background(), "flaky"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := r.Resolve(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("expected recovered, got %q", got)
	}
}

func TestPreloadResolvesAllDeferred(t *testing.T) {
	var calls atomic.Int64
	load := func(body string) Loader[string] {
		return func(ctx context.Context) (any, error) {
			calls.Add(1)
			return body, nil
		}
	}
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"a":       Deferred[string](load("alpha")),
		"b":       Deferred[string](load("beta")),
		"literal": Value("gamma"),
	})

	if err := r.Preload(context.Background()); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 loads, got %d", calls.Load())
	}
	for key, want := range map[string]string{"a": "alpha", "b": "beta"} {
		got, err := r.Resolve(context.Background(), key)
		if err != nil || got != want {
			t.Fatalf("resolve %q = %q, %v; want %q", key, got, err, want)
		}
	}
}

func TestPreloadFailsOnAnyFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"bad": Deferred[string](func(ctx context.Context) (any, error) {
			return nil, boom
		}),
	})
	if err := r.Preload(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestClearCacheRetainsRegistry(t *testing.T) {
	var calls atomic.Int64
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{
		"a": Deferred[string](func(ctx context.Context) (any, error) {
			calls.Add(1)
			return "alpha", nil
		}),
	})

	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	r.ClearCache()
	if !r.Has("a") {
		t.Fatal("expected registry definition to survive ClearCache")
	}
	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatalf("resolve after clear: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected reload after clear, got %d loads", calls.Load())
	}
}

func TestReregisterDoesNotInvalidateCache(t *testing.T) {
	r := NewResolver[string]()
	r.Register(map[string]Entry[string]{"a": Value("old")})

	if got, _ := r.Resolve(context.Background(), "a"); got != "old" {
		t.Fatalf("expected old, got %q", got)
	}
	r.Register(map[string]Entry[string]{"a": Value("new")})
	if got, _ := r.Resolve(context.Background(), "a"); got != "old" {
		t.Fatalf("expected cached old value, got %q", got)
	}

	r.ClearCache()
	if got, _ := r.Resolve(context.Background(), "a"); got != "new" {
		t.Fatalf("expected new after ClearCache, got %q", got)
	}
}
