package registry

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dotscan_registry_cache_hits_total",
		Help: "Попадания в LRU-кэш ответов реестра.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dotscan_registry_cache_misses_total",
		Help: "Промахи LRU-кэша ответов реестра.",
	})
)

// Lookuper — источник результатов поиска перевозчика.
type Lookuper interface {
	Lookup(ctx context.Context, usdot string) model.CarrierLookup
}

// Cache — LRU-кэш с TTL поверх Lookuper. Хранятся только успешные
// результаты: неуспешный поиск повторяется при следующей загрузке.
type Cache struct {
	next  Lookuper
	cache *expirable.LRU[string, model.CarrierLookup]
}

// NewCache создаёт кэш на maxSize записей с временем жизни ttl.
func NewCache(next Lookuper, maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		next:  next,
		cache: expirable.NewLRU[string, model.CarrierLookup](maxSize, nil, ttl),
	}
}

// Lookup возвращает результат из кэша или запрашивает источник.
func (c *Cache) Lookup(ctx context.Context, usdot string) model.CarrierLookup {
	if l, ok := c.cache.Get(usdot); ok {
		cacheHitsTotal.Inc()
		return l
	}
	cacheMissesTotal.Inc()

	l := c.next.Lookup(ctx, usdot)
	if l.Success {
		c.cache.Add(usdot, l)
	}
	return l
}

// Len — количество записей в кэше.
func (c *Cache) Len() int {
	return c.cache.Len()
}
