package resolver

import (
	"context"
	"testing"
	"time"

	"edgegate/pkg/errutil"
	"edgegate/services/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRegistry struct {
	bindings map[string]*domain.Binding
	err      error
	calls    int
}

func (s *stubRegistry) ResolveActive(_ context.Context, hostname string) (*domain.Binding, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if b, ok := s.bindings[hostname]; ok {
		return b, nil
	}
	return nil, errutil.NotFound("domain not found", nil)
}

func newTestCache(registry Registry) (*Cache, *time.Time) {
	c := NewCache(registry, 60*time.Second, 10*time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestResolveCachesPositive(t *testing.T) {
	registry := &stubRegistry{bindings: map[string]*domain.Binding{
		"shop.example.com": {Hostname: "shop.example.com", TenantID: "acc_1", TenantSlug: "acme"},
	}}
	cache, _ := newTestCache(registry)

	first, err := cache.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "acme", first.TenantSlug)

	second, err := cache.Resolve(context.Background(), "Shop.Example.com.")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, registry.calls)
}

func TestResolveCachesNegative(t *testing.T) {
	registry := &stubRegistry{}
	cache, now := newTestCache(registry)

	binding, err := cache.Resolve(context.Background(), "unknown.example.com")
	require.NoError(t, err)
	assert.Nil(t, binding)

	_, err = cache.Resolve(context.Background(), "unknown.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, registry.calls)

	// Past the negative TTL the registry is consulted again.
	*now = now.Add(11 * time.Second)

	_, err = cache.Resolve(context.Background(), "unknown.example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, registry.calls)
}

func TestPositiveEntryExpires(t *testing.T) {
	registry := &stubRegistry{bindings: map[string]*domain.Binding{
		"shop.example.com": {Hostname: "shop.example.com", TenantSlug: "acme"},
	}}
	cache, now := newTestCache(registry)

	_, err := cache.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)

	*now = now.Add(61 * time.Second)

	_, ok := cache.Get("shop.example.com")
	assert.False(t, ok)

	_, err = cache.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, registry.calls)
}

func TestResolveErrorsAreNotCached(t *testing.T) {
	registry := &stubRegistry{err: errutil.Internal("db down", nil)}
	cache, _ := newTestCache(registry)

	_, err := cache.Resolve(context.Background(), "shop.example.com")
	require.Error(t, err)

	_, err = cache.Resolve(context.Background(), "shop.example.com")
	require.Error(t, err)
	assert.Equal(t, 2, registry.calls)
}

func TestInvalidateDropsEntry(t *testing.T) {
	registry := &stubRegistry{bindings: map[string]*domain.Binding{
		"shop.example.com": {Hostname: "shop.example.com", TenantSlug: "acme"},
	}}
	cache, _ := newTestCache(registry)

	_, err := cache.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)

	cache.Invalidate("shop.example.com")

	_, err = cache.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, registry.calls)
}

func TestConsumeInvalidationsStopsOnClose(t *testing.T) {
	registry := &stubRegistry{bindings: map[string]*domain.Binding{
		"shop.example.com": {Hostname: "shop.example.com", TenantSlug: "acme"},
	}}
	cache, _ := newTestCache(registry)

	_, err := cache.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)

	msgs := make(chan *redis.Message)
	done := make(chan struct{})
	go func() {
		consumeInvalidations(cache, msgs)
		close(done)
	}()

	msgs <- &redis.Message{Payload: "shop.example.com"}
	assert.Eventually(t, func() bool {
		_, ok := cache.Get("shop.example.com")
		return !ok
	}, time.Second, 10*time.Millisecond)

	close(msgs)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not exit after the channel closed")
	}
}

func TestSetAndGet(t *testing.T) {
	cache, _ := newTestCache(&stubRegistry{})

	cache.Set("shop.example.com", &domain.Binding{TenantSlug: "acme"}, time.Minute)

	binding, ok := cache.Get("shop.example.com")
	require.True(t, ok)
	assert.Equal(t, "acme", binding.TenantSlug)

	cache.Set("gone.example.com", nil, time.Minute)
	binding, ok = cache.Get("gone.example.com")
	assert.True(t, ok)
	assert.Nil(t, binding)
}
