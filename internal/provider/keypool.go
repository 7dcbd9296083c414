package provider

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// KeyPool hands out provider API keys. Each key carries its own token
// bucket; Acquire blocks on the current key's bucket, Rotate advances to the
// next key after a rate-limit response.
type KeyPool struct {
	mu       sync.Mutex
	keys     []string
	limiters []*rate.Limiter
	current  int
}

func NewKeyPool(keys []string, perSecond float64, burst int) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key pool requires at least one API key")
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	limiters := make([]*rate.Limiter, len(keys))
	for i := range keys {
		limiters[i] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}

	return &KeyPool{keys: keys, limiters: limiters}, nil
}

// Acquire waits for the active key's bucket and returns the key.
func (p *KeyPool) Acquire(ctx context.Context) (string, error) {
	p.mu.Lock()
	idx := p.current
	limiter := p.limiters[idx]
	key := p.keys[idx]
	p.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return "", err
	}
	return key, nil
}

// Rotate switches to the next key if the given key is still the active one.
// Concurrent callers that hit 429 on the same key rotate once, not N times.
func (p *KeyPool) Rotate(usedKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keys[p.current] == usedKey {
		p.current = (p.current + 1) % len(p.keys)
	}
}

// Size returns the number of keys in the pool.
func (p *KeyPool) Size() int {
	return len(p.keys)
}
