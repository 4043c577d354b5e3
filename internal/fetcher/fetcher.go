package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"driftwatch/crawler/internal/config"
	"driftwatch/crawler/internal/ratelimit"
)

// Result is the outcome of a single successful retrieval. It is owned by
// the worker that produced it and discarded after parsing.
type Result struct {
	SourceID    string
	URL         string // final URL after redirects
	Body        []byte
	StatusCode  int
	ContentType string
	FetchedAt   time.Time
}

// Fetcher performs bounded HTTP retrievals behind the rate limiter.
type Fetcher struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	cfg     *config.Config
	logger  zerolog.Logger
}

func New(cfg *config.Config, limiter *ratelimit.Limiter, logger zerolog.Logger) *Fetcher {
	client := &http.Client{
		Timeout: cfg.RequestTimeout(),
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Fetcher{
		client:  client,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch retrieves one source with retries. Transient failures (timeout,
// connection errors, 5xx, 429) are retried with exponential backoff plus
// jitter; every attempt re-acquires a rate-limiter permit, so a retry is a
// brand-new politeness-gated request, never a bypass.
func (f *Fetcher) Fetch(ctx context.Context, src config.Source) (*Result, error) {
	parsed, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", src.URL, err)
	}
	domain := parsed.Host

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.backoff(attempt)
			f.logger.Debug().
				Str("source_id", src.ID).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying fetch")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		release, err := f.limiter.Acquire(ctx, domain)
		if err != nil {
			// Permit failures are not remote-endpoint failures; retrying
			// inside this loop would just hit the same ceiling again.
			return nil, fmt.Errorf("rate limit: %w", err)
		}

		res, err := f.fetchOnce(ctx, src)
		release()

		if err == nil {
			return res, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if statusErr.Code == http.StatusTooManyRequests {
				f.limiter.Cooldown(domain, f.cfg.Cooldown())
				continue
			}
			if statusErr.Retryable() {
				continue
			}
			return nil, err
		}
		if errors.Is(err, ErrTooLarge) {
			// An oversized body will not shrink on retry.
			return nil, err
		}
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection) {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", src.URL, f.cfg.MaxRetries+1, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, src config.Source) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused, then discard.
		io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &StatusError{Code: resp.StatusCode, URL: src.URL}
	}

	// Read one byte past the cap to distinguish "exactly at the limit"
	// from "over the limit".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, src.URL, f.cfg.MaxBodyBytes)
	}

	return &Result{
		SourceID:    src.ID,
		URL:         resp.Request.URL.String(),
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// backoff computes min * 2^(attempt-1) capped at max, with ±jitter%.
func (f *Fetcher) backoff(attempt int) time.Duration {
	minMS := float64(f.cfg.BackoffMinMS)
	maxMS := float64(f.cfg.BackoffMaxMS)

	exp := minMS * float64(int64(1)<<uint(attempt-1))
	if exp > maxMS {
		exp = maxMS
	}

	jitterRange := exp * float64(f.cfg.JitterPct) / 100
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange

	final := exp + jitter
	if final < minMS {
		final = minMS
	}

	return time.Duration(final) * time.Millisecond
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
