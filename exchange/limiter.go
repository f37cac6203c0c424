package exchange

import (
	"sync"
	"time"
)

// RateLimiter 控制对交易所的请求速率，避免触发 10006 限流。
type RateLimiter interface {
	Wait()
}

// TokenBucket 简单令牌桶。rate 为每秒补充令牌数，burst 为桶容量。
type TokenBucket struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

func (b *TokenBucket) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	b.last = now
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	if b.tokens < 1 {
		sleep := time.Duration((1-b.tokens)/b.rate*float64(time.Second)) + time.Millisecond
		b.mu.Unlock()
		time.Sleep(sleep)
		b.mu.Lock()
		b.tokens = 0
		return
	}
	b.tokens--
}
