package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrAcquireTimeout is returned when a permit could not be obtained within
// the configured wait ceiling.
var ErrAcquireTimeout = errors.New("rate limit acquire timed out")

// ErrBlockedDomain is returned for domains on the block list.
var ErrBlockedDomain = errors.New("domain is blocked")

// Config describes limiter behavior. Domains not present in Overrides
// share one default bucket, so a misconfigured source list cannot inflate
// limiter bookkeeping.
type Config struct {
	GlobalConcurrent int
	DefaultPerSecond float64
	DefaultBurst     int
	AcquireTimeout   time.Duration
	Overrides        map[string]DomainLimit
	BlockedDomains   []string
}

// DomainLimit overrides the bucket parameters for one domain.
type DomainLimit struct {
	PerSecond float64
	Burst     int
}

// Limiter gates outbound requests per-domain and globally. Domain buckets
// refill on a timer (steady-state politeness); only the global slot is
// returned on release. Cooldowns are tracked per domain even when the
// refill bucket is shared, so one misbehaving unknown domain cannot gate
// every other unknown domain.
type Limiter struct {
	global         chan struct{}
	acquireTimeout time.Duration

	mu            sync.Mutex
	buckets       map[string]*rate.Limiter
	defaultBucket *rate.Limiter
	cooldowns     map[string]time.Time
	blocked       map[string]bool
}

// New builds a limiter with one bucket per configured domain plus a shared
// default bucket for everything else.
func New(cfg Config) *Limiter {
	l := &Limiter{
		global:         make(chan struct{}, cfg.GlobalConcurrent),
		acquireTimeout: cfg.AcquireTimeout,
		buckets:        make(map[string]*rate.Limiter, len(cfg.Overrides)),
		defaultBucket:  rate.NewLimiter(rate.Limit(cfg.DefaultPerSecond), cfg.DefaultBurst),
		cooldowns:      make(map[string]time.Time),
		blocked:        make(map[string]bool, len(cfg.BlockedDomains)),
	}

	for domain, limit := range cfg.Overrides {
		l.buckets[strings.ToLower(domain)] = rate.NewLimiter(rate.Limit(limit.PerSecond), limit.Burst)
	}
	for _, domain := range cfg.BlockedDomains {
		l.blocked[strings.ToLower(domain)] = true
	}

	return l
}

// Acquire blocks until both the domain bucket and a global slot are held,
// or fails with ErrAcquireTimeout after the wait ceiling. A cooldown that
// cannot elapse within the ceiling fails immediately instead of parking
// the caller for the full ceiling first. The returned release function
// frees only the global slot.
func (l *Limiter) Acquire(ctx context.Context, domain string) (func(), error) {
	domain = strings.ToLower(domain)

	l.mu.Lock()
	if l.blocked[domain] {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBlockedDomain, domain)
	}
	bucket, ok := l.buckets[domain]
	if !ok {
		bucket = l.defaultBucket
	}
	cooldown := time.Until(l.cooldowns[domain])
	l.mu.Unlock()

	if cooldown > l.acquireTimeout {
		return nil, fmt.Errorf("%w: %s cooling down for %s", ErrAcquireTimeout, domain, cooldown.Round(time.Millisecond))
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	if cooldown > 0 {
		timer := time.NewTimer(cooldown)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-waitCtx.Done():
			return nil, l.classify(ctx, waitCtx.Err(), domain)
		}
	}

	if err := bucket.Wait(waitCtx); err != nil {
		return nil, l.classify(ctx, err, domain)
	}

	select {
	case l.global <- struct{}{}:
	case <-waitCtx.Done():
		return nil, l.classify(ctx, waitCtx.Err(), domain)
	}

	return func() { <-l.global }, nil
}

// Cooldown suspends acquisitions for one domain for the given duration.
// Used when a remote endpoint answers 429: politeness beyond the steady
// refill rate. Only the named domain is affected.
func (l *Limiter) Cooldown(domain string, d time.Duration) {
	domain = strings.ToLower(domain)
	until := time.Now().Add(d)

	l.mu.Lock()
	if until.After(l.cooldowns[domain]) {
		l.cooldowns[domain] = until
	}
	l.mu.Unlock()
}

// classify maps a wait failure to ErrAcquireTimeout while preserving
// caller cancellation. rate.Limiter.Wait also fails early when the token
// cannot arrive before the deadline; with a live parent context that is
// still a ceiling hit.
func (l *Limiter) classify(parent context.Context, err error, domain string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAcquireTimeout, domain)
	}
	return nil
}
