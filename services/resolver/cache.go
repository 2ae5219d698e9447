package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"edgegate/pkg/config"
	"edgegate/pkg/errutil"
	"edgegate/pkg/rediskey"
	"edgegate/services/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "domain_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "domain_cache_miss_total"})
)

// Registry is the authoritative read path behind the cache.
type Registry interface {
	ResolveActive(ctx context.Context, hostname string) (*domain.Binding, error)
}

// entry wraps either a resolved binding or a confirmed absence (nil
// binding). Entries past expiresAt are treated as missing, never as stale.
type entry struct {
	binding   *domain.Binding
	expiresAt time.Time
}

// Cache is the in-process hostname to tenant-binding cache. It is built
// once at startup and injected into the edge router; there is no ambient
// singleton. Positive and negative outcomes carry independent TTLs.
type Cache struct {
	mu          sync.RWMutex
	items       map[string]entry
	positiveTTL time.Duration
	negativeTTL time.Duration
	registry    Registry
	group       singleflight.Group
	now         func() time.Time
}

type CacheParams struct {
	fx.In
	Config   *config.Config
	Registry *domain.Service
}

var Module = fx.Module("resolver",
	fx.Provide(ProvideCache),
	fx.Invoke(subscribeInvalidations),
)

func ProvideCache(p CacheParams) *Cache {
	return NewCache(p.Registry, p.Config.Gateway.PositiveTTL, p.Config.Gateway.NegativeTTL)
}

func NewCache(registry Registry, positiveTTL, negativeTTL time.Duration) *Cache {
	return &Cache{
		items:       make(map[string]entry),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		registry:    registry,
		now:         time.Now,
	}
}

// Get returns the cached outcome for hostname. ok=false means no valid
// entry; a nil binding with ok=true is a cached negative. Expired entries
// are removed lazily here.
func (c *Cache) Get(hostname string) (*domain.Binding, bool) {
	c.mu.RLock()
	e, ok := c.items[hostname]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry meanwhile.
		if cur, ok := c.items[hostname]; ok && c.now().After(cur.expiresAt) {
			delete(c.items, hostname)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.binding, true
}

// Set stores an outcome with an explicit TTL. A nil binding records a
// confirmed absence.
func (c *Cache) Set(hostname string, binding *domain.Binding, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[hostname] = entry{binding: binding, expiresAt: c.now().Add(ttl)}
}

func (c *Cache) Invalidate(hostname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, hostname)
}

// Resolve is the read-through lookup used by the edge router. On a miss the
// registry is queried synchronously (deduplicated per hostname) and the
// outcome, positive or negative, is cached before returning. A nil binding
// with nil error means the hostname is confirmed unbound.
func (c *Cache) Resolve(ctx context.Context, hostname string) (*domain.Binding, error) {
	host := strings.ToLower(strings.TrimSuffix(hostname, "."))

	if binding, ok := c.Get(host); ok {
		cacheHits.Inc()
		return binding, nil
	}

	cacheMiss.Inc()

	v, err, _ := c.group.Do(host, func() (any, error) {
		binding, err := c.registry.ResolveActive(ctx, host)
		if err != nil {
			var base errutil.BaseError
			if errors.As(err, &base) && base.Code == errutil.StatusNotFound {
				c.Set(host, nil, c.negativeTTL)
				return (*domain.Binding)(nil), nil
			}
			// Infrastructure failures are not cached; the next request
			// retries the registry.
			return nil, err
		}

		c.Set(host, binding, c.positiveTTL)
		return binding, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Binding), nil
}

type subscribeParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cache     *Cache
	Redis     *redis.Client `optional:"true"`
}

// subscribeInvalidations drops cached bindings named on the shared redis
// channel so registry writes propagate across gateway instances before TTL
// expiry. Best-effort: without redis the TTLs alone bound staleness.
func subscribeInvalidations(p subscribeParams) {
	if p.Redis == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var sub *redis.PubSub

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sub = p.Redis.Subscribe(ctx, rediskey.DomainInvalidationChannel)
			// Closing the subscription closes its channel and ends the
			// goroutine.
			go consumeInvalidations(p.Cache, sub.Channel())
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			if sub != nil {
				return sub.Close()
			}
			return nil
		},
	})
}

func consumeInvalidations(cache *Cache, msgs <-chan *redis.Message) {
	for msg := range msgs {
		cache.Invalidate(msg.Payload)
		zap.L().Debug("domain binding invalidated", zap.String("hostname", msg.Payload))
	}
}
