package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ahrav/go-reward/internal/ports"
)

// cacheKey identifies a request by everything that reaches the provider.
type cacheKey [sha256.Size]byte

type cachedLLM struct {
	next      CoreLLM
	cache     *lru.Cache[cacheKey, Completion]
	collector ports.MetricsCollector
}

// CacheMiddleware serves repeated identical requests from an LRU of size
// entries. Failed calls are not cached. A non-positive size disables it.
// collector may be nil.
func CacheMiddleware(size int, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if size <= 0 {
			return next
		}
		cache, err := lru.New[cacheKey, Completion](size)
		if err != nil {
			return next
		}
		return &cachedLLM{next: next, cache: cache, collector: collector}
	}
}

// Complete implements CoreLLM.
func (c *cachedLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	key := c.key(req)
	if resp, ok := c.cache.Get(key); ok {
		if c.collector != nil {
			c.collector.RecordCounter(MetricJudgeCacheHits, 1, map[string]string{
				"provider": c.next.Provider(),
				"model":    c.next.Model(),
			})
		}
		return resp, nil
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	c.cache.Add(key, resp)
	return resp, nil
}

func (c *cachedLLM) key(req CompletionRequest) cacheKey {
	h := sha256.New()
	var buf [8]byte
	writeFloat := func(p *float64) {
		v := math.NaN()
		if p != nil {
			v = *p
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	h.Write([]byte(c.next.Model()))
	h.Write([]byte{0})
	binary.LittleEndian.PutUint64(buf[:], uint64(req.maxTokens()))
	h.Write(buf[:])
	writeFloat(req.Temperature)
	writeFloat(req.TopP)
	h.Write([]byte(req.Prompt))

	var key cacheKey
	h.Sum(key[:0])
	return key
}

// Model implements CoreLLM.
func (c *cachedLLM) Model() string { return c.next.Model() }

// Provider implements CoreLLM.
func (c *cachedLLM) Provider() string { return c.next.Provider() }
