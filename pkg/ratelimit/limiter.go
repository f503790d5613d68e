// Package ratelimit ограничивает частоту исходящих запросов к API брокеров.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket: rate токенов/сек, ёмкость burst, запрос стоит 1 токен.
//
//	limiter := NewRateLimiter(5, 10)
//	if err := limiter.Wait(ctx); err != nil { ... }
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewRateLimiter создаёт limiter с полным ведром.
// rate <= 0 заменяется на 10, burst не меньше rate.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	return newLimiter(rate, burst, time.Now)
}

func newLimiter(rate, burst float64, now func() time.Time) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst < rate {
		burst = rate
	}
	t := now()
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// reserve забирает токен и возвращает, сколько ждать до его готовности.
// Баланс может уйти в минус: следующие вызовы встают в очередь за текущим.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
		rl.lastRefill = now
	}
	rl.lastUsed = now

	rl.tokens--
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.rate * float64(time.Second))
}

// cancel возвращает токен неиспользованной резервации
func (rl *RateLimiter) cancel() {
	rl.mu.Lock()
	rl.tokens++
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.mu.Unlock()
}

// Wait блокирует до готовности токена или отмены контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay := rl.reserve()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		rl.cancel()
		return ctx.Err()
	}
}

// Allow забирает токен без ожидания
func (rl *RateLimiter) Allow() bool {
	if rl.reserve() == 0 {
		return true
	}
	rl.cancel()
	return false
}

func (rl *RateLimiter) idleSince() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastUsed
}

// KeyedLimiter держит отдельное ведро на ключ "broker:userID".
// Ведра, простоявшие дольше idleTTL, удаляются при очередном обращении.
type KeyedLimiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	idleTTL   time.Duration
	lastSweep time.Time
	limiters  map[string]*RateLimiter
	now       func() time.Time
}

// DefaultIdleTTL - время жизни неиспользуемого ведра
const DefaultIdleTTL = 15 * time.Minute

// NewKeyedLimiter создаёт KeyedLimiter с общими параметрами для всех ключей
func NewKeyedLimiter(rate, burst float64) *KeyedLimiter {
	return &KeyedLimiter{
		rate:      rate,
		burst:     burst,
		idleTTL:   DefaultIdleTTL,
		lastSweep: time.Now(),
		limiters:  make(map[string]*RateLimiter),
		now:       time.Now,
	}
}

// Get возвращает ведро ключа, создавая его при первом обращении
func (kl *KeyedLimiter) Get(key string) *RateLimiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	if now.Sub(kl.lastSweep) >= kl.idleTTL {
		kl.sweep(now)
	}

	limiter, ok := kl.limiters[key]
	if !ok {
		limiter = newLimiter(kl.rate, kl.burst, kl.now)
		kl.limiters[key] = limiter
	}
	return limiter
}

// sweep удаляет простаивающие ведра (под lock'ом)
func (kl *KeyedLimiter) sweep(now time.Time) {
	for key, limiter := range kl.limiters {
		if now.Sub(limiter.idleSince()) >= kl.idleTTL {
			delete(kl.limiters, key)
		}
	}
	kl.lastSweep = now
}

// Wait ожидает токен для ключа
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.Get(key).Wait(ctx)
}

// Len возвращает количество ключей
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}
