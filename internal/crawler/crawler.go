package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"driftwatch/crawler/internal/cache"
	"driftwatch/crawler/internal/config"
	"driftwatch/crawler/internal/dedup"
	"driftwatch/crawler/internal/fetcher"
	"driftwatch/crawler/internal/models"
	"driftwatch/crawler/internal/notify"
	"driftwatch/crawler/internal/parser"
	"driftwatch/crawler/internal/storage"
)

// Crawler drives the periodic crawl loop: it dispatches due sources to a
// bounded worker pool, funnels candidates through deduplication, and
// reconciles each cycle into a report before fanning out notifications.
//
// Only one cycle runs at a time. A trigger that arrives mid-cycle is
// queued; further triggers while one is pending are dropped.
type Crawler struct {
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	dedup   *dedup.Deduplicator
	cache   *cache.Cache
	store   *storage.Repository
	sinks   []notify.Sink
	logger  zerolog.Logger

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// sources and parsers are replaced together by Reload, never patched
	// in place; a running cycle keeps the snapshot it took at dispatch.
	mu         sync.Mutex
	sources    *config.SourceFile
	parsers    map[string]parser.Parser
	lastReport *models.CycleReport
	lastRun    map[string]time.Time
	cycleID    int64
}

// buildParsers binds one parser per enabled source so a selector problem
// surfaces at startup or reload, not mid-cycle.
func buildParsers(sources *config.SourceFile, summaryMaxLen int) (map[string]parser.Parser, error) {
	parsers := make(map[string]parser.Parser)
	for _, src := range sources.EnabledSources() {
		p, err := parser.ForSource(src, summaryMaxLen)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.ID, err)
		}
		parsers[src.ID] = p
	}
	return parsers, nil
}

type sourceResult struct {
	outcome models.SourceOutcome
	events  []notify.Event
}

func New(
	cfg *config.Config,
	sources *config.SourceFile,
	f *fetcher.Fetcher,
	d *dedup.Deduplicator,
	c *cache.Cache,
	store *storage.Repository,
	sinks []notify.Sink,
	logger zerolog.Logger,
) (*Crawler, error) {
	parsers, err := buildParsers(sources, cfg.SummaryMaxLen)
	if err != nil {
		return nil, err
	}

	return &Crawler{
		cfg:     cfg,
		sources: sources,
		fetcher: f,
		dedup:   d,
		cache:   c,
		store:   store,
		sinks:   sinks,
		logger:  logger.With().Str("component", "crawler").Logger(),
		parsers: parsers,
		trigger: make(chan struct{}, 1),
		lastRun: make(map[string]time.Time),
	}, nil
}

// Start launches the crawl loop. The first cycle runs immediately; after
// that, cycles fire on the configured interval or on TriggerNow.
func (c *Crawler) Start(ctx context.Context) error {
	last, err := c.store.LastReport(ctx)
	if err != nil {
		return fmt.Errorf("load last report: %w", err)
	}
	if last != nil {
		c.mu.Lock()
		c.lastReport = last
		c.cycleID = last.CycleID
		c.mu.Unlock()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.cache.StartSweeper(loopCtx, c.cfg.CacheTTL())

	c.wg.Add(1)
	go c.loop(loopCtx)
	return nil
}

// Stop cancels the loop and waits for any in-flight cycle to finish, so
// no report is half-written on shutdown.
func (c *Crawler) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// TriggerNow requests an immediate cycle covering every enabled source,
// regardless of per-source schedules. Non-blocking; returns false when a
// manual cycle is already queued.
func (c *Crawler) TriggerNow() bool {
	select {
	case c.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastReport returns the most recent finished cycle report, or nil before
// the first cycle completes.
func (c *Crawler) LastReport() *models.CycleReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReport
}

// Reload replaces the source list wholesale. The new list takes effect at
// the next dispatch; a cycle already in flight finishes on its old
// snapshot. On error the current list stays active.
func (c *Crawler) Reload(sources *config.SourceFile) error {
	parsers, err := buildParsers(sources, c.cfg.SummaryMaxLen)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sources = sources
	c.parsers = parsers
	for id := range c.lastRun {
		if _, ok := parsers[id]; !ok {
			delete(c.lastRun, id)
		}
	}
	c.mu.Unlock()

	c.logger.Info().
		Int("sources", len(sources.Sources)).
		Int("enabled", len(sources.EnabledSources())).
		Msg("Source list reloaded")
	return nil
}

func (c *Crawler) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval())
	defer ticker.Stop()

	c.RunCycle(ctx, false)

	for {
		select {
		case <-ticker.C:
			c.RunCycle(ctx, false)
		case <-c.trigger:
			c.RunCycle(ctx, true)
		case <-ctx.Done():
			c.logger.Info().Msg("Crawl loop stopped")
			return
		}
	}
}

// RunCycle executes one full crawl cycle. When force is set, per-source
// schedules are ignored and every enabled source is fetched.
func (c *Crawler) RunCycle(ctx context.Context, force bool) *models.CycleReport {
	started := time.Now().UTC()

	// Snapshot sources and parsers together so a reload landing mid-cycle
	// cannot leave a due source without its parser.
	c.mu.Lock()
	c.cycleID++
	cycleID := c.cycleID
	parsers := c.parsers
	due := c.dueSourcesLocked(started, force)
	c.mu.Unlock()

	logger := c.logger.With().Int64("cycle_id", cycleID).Logger()
	logger.Info().
		Int("sources", len(due)).
		Bool("forced", force).
		Msg("Cycle dispatching")

	if len(due) == 0 {
		report := &models.CycleReport{
			CycleID:    cycleID,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Outcomes:   []models.SourceOutcome{},
		}
		c.reconcile(ctx, logger, report, nil)
		return report
	}

	jobs := make(chan config.Source)
	results := make(chan sourceResult, len(due))

	workers := c.cfg.MaxConcurrent
	if workers > len(due) {
		workers = len(due)
	}

	var pool sync.WaitGroup
	for i := 0; i < workers; i++ {
		pool.Add(1)
		go func() {
			defer pool.Done()
			for src := range jobs {
				results <- c.processSource(ctx, src, parsers[src.ID])
			}
		}()
	}

	for _, src := range due {
		jobs <- src
	}
	close(jobs)

	logger.Debug().Msg("Cycle awaiting workers")
	pool.Wait()
	close(results)

	report := &models.CycleReport{
		CycleID:   cycleID,
		StartedAt: started,
		Outcomes:  make([]models.SourceOutcome, 0, len(due)),
	}
	var events []notify.Event
	for res := range results {
		report.Outcomes = append(report.Outcomes, res.outcome)
		if res.outcome.OK {
			report.SourcesOK++
		} else {
			report.SourcesFailed++
		}
		report.ItemsAccepted += res.outcome.ItemsAccepted
		report.ItemsDuplicate += res.outcome.ItemsDuplicate
		events = append(events, res.events...)
	}
	report.FinishedAt = time.Now().UTC()

	c.markRun(due, started)
	c.reconcile(ctx, logger, report, events)
	return report
}

// scheduleSlack absorbs the ticker's scheduling jitter: cycle starts are
// stamped a little after the tick, so an exact interval comparison would
// intermittently skip a source for a whole extra period.
const scheduleSlack = time.Second

// dueSourcesLocked selects the sources to crawl this cycle; the caller
// holds c.mu. Sources without their own interval ride the global ticker
// and are always due. A source with its own interval is skipped until
// that interval has elapsed since its last run; forced cycles take
// everything enabled.
func (c *Crawler) dueSourcesLocked(now time.Time, force bool) []config.Source {
	enabled := c.sources.EnabledSources()
	if force {
		return enabled
	}

	due := make([]config.Source, 0, len(enabled))
	for _, src := range enabled {
		if src.IntervalS <= 0 {
			due = append(due, src)
			continue
		}
		interval := time.Duration(src.IntervalS) * time.Second
		last, ok := c.lastRun[src.ID]
		if !ok || now.Sub(last) >= interval-scheduleSlack {
			due = append(due, src)
		}
	}
	return due
}

func (c *Crawler) markRun(sources []config.Source, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, src := range sources {
		c.lastRun[src.ID] = at
	}
}

// processSource runs the fetch/parse/dedup chain for one source. Failures
// are confined to the outcome; a broken source never aborts the cycle.
func (c *Crawler) processSource(ctx context.Context, src config.Source, p parser.Parser) sourceResult {
	outcome := models.SourceOutcome{SourceID: src.ID}

	res, err := c.fetcher.Fetch(ctx, src)
	if err != nil {
		c.logger.Warn().Err(err).Str("source_id", src.ID).Msg("Fetch failed")
		outcome.Error = err.Error()
		return sourceResult{outcome: outcome}
	}

	candidates, err := p.Parse(res)
	if err != nil {
		c.logger.Warn().Err(err).Str("source_id", src.ID).Msg("Parse failed")
		outcome.Error = err.Error()
		return sourceResult{outcome: outcome}
	}

	var events []notify.Event
	for _, item := range candidates {
		if item.PublishedAt == nil {
			// Ordering downstream needs some timestamp; retrieval time is
			// the best available stand-in.
			fetched := res.FetchedAt
			item.PublishedAt = &fetched
		}

		result, fp, err := c.dedup.Accept(ctx, item)
		if err != nil {
			c.logger.Error().Err(err).
				Str("source_id", src.ID).
				Str("fingerprint", fp).
				Msg("Dedup store error, skipping item")
			continue
		}
		if result == dedup.Duplicate {
			outcome.ItemsDuplicate++
			continue
		}

		outcome.ItemsAccepted++
		ev := notify.Event{
			Fingerprint: fp,
			SourceID:    item.SourceID,
			Title:       item.Title,
			URL:         item.URL,
			Summary:     item.Summary,
			PublishedAt: item.PublishedAt,
		}
		c.cache.Put(fp, ev)
		events = append(events, ev)
	}

	outcome.OK = true
	return sourceResult{outcome: outcome, events: events}
}

// reconcile persists the report, publishes events, applies retention and
// makes the report visible to LastReport.
func (c *Crawler) reconcile(ctx context.Context, logger zerolog.Logger, report *models.CycleReport, events []notify.Event) {
	logger.Debug().Msg("Cycle reconciling")

	if err := c.store.SaveReport(ctx, report); err != nil {
		logger.Error().Err(err).Msg("Failed to persist cycle report")
	}

	for _, ev := range events {
		for _, sink := range c.sinks {
			sink.Publish(ev)
		}
	}

	if purged, err := c.store.PurgeOld(ctx, c.cfg.RetentionDays); err != nil {
		logger.Error().Err(err).Msg("Retention purge failed")
	} else if purged > 0 {
		logger.Info().Int64("purged", purged).Msg("Retention purge removed old records")
	}

	c.mu.Lock()
	c.lastReport = report
	c.mu.Unlock()

	logger.Info().
		Int("sources_ok", report.SourcesOK).
		Int("sources_failed", report.SourcesFailed).
		Int("items_accepted", report.ItemsAccepted).
		Int("items_duplicate", report.ItemsDuplicate).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Cycle finished")
}
