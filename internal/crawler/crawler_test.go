package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"driftwatch/crawler/internal/cache"
	"driftwatch/crawler/internal/config"
	"driftwatch/crawler/internal/database"
	"driftwatch/crawler/internal/dedup"
	"driftwatch/crawler/internal/fetcher"
	"driftwatch/crawler/internal/notify"
	"driftwatch/crawler/internal/ratelimit"
	"driftwatch/crawler/internal/storage"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Test Feed</title>
	<link>https://example.com</link>
	<item>
		<title>Alpha</title>
		<link>https://example.com/alpha</link>
		<pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
	</item>
	<item>
		<title>Beta</title>
		<link>https://example.com/beta</link>
		<pubDate>Mon, 02 Jan 2006 16:04:05 GMT</pubDate>
	</item>
	<item>
		<title>Gamma</title>
		<link>https://example.com/gamma</link>
	</item>
</channel>
</rss>`

type harness struct {
	crawler *Crawler
	store   *storage.Repository
	cache   *cache.Cache
	sink    *notify.ChannelSink
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBPath = t.TempDir() + "/crawler_test.db"
	cfg.MaxConcurrent = 3
	cfg.MaxRetries = 1
	cfg.RequestTimeoutMS = 2000
	cfg.BackoffMinMS = 1
	cfg.BackoffMaxMS = 5
	cfg.DomainPerSecond = 1000
	cfg.DomainBurst = 100
	cfg.AcquireTimeoutMS = 2000
	cfg.CooldownMS = 10
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config, sources []config.Source) *harness {
	t.Helper()

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewRepository(db)
	limiter := ratelimit.New(ratelimit.Config{
		GlobalConcurrent: cfg.MaxConcurrent,
		DefaultPerSecond: cfg.DomainPerSecond,
		DefaultBurst:     cfg.DomainBurst,
		AcquireTimeout:   cfg.AcquireTimeout(),
	})

	logger := zerolog.Nop()
	f := fetcher.New(cfg, limiter, logger)
	d := dedup.New(store)
	ca := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL())
	sink := notify.NewChannelSink(64)

	sf := &config.SourceFile{Sources: sources}
	cr, err := New(cfg, sf, f, d, ca, store, []notify.Sink{sink}, logger)
	if err != nil {
		t.Fatalf("build crawler: %v", err)
	}

	return &harness{crawler: cr, store: store, cache: ca, sink: sink}
}

func feedSource(id, rawURL string) config.Source {
	return config.Source{ID: id, URL: rawURL, Kind: config.KindFeed, Enabled: true}
}

func TestCycleAcceptsNewItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("feed-1", srv.URL)})
	ctx := context.Background()

	report := h.crawler.RunCycle(ctx, true)

	if report.SourcesOK != 1 || report.SourcesFailed != 0 {
		t.Fatalf("expected 1 OK source, got ok=%d failed=%d", report.SourcesOK, report.SourcesFailed)
	}
	if report.ItemsAccepted != 3 {
		t.Errorf("expected 3 accepted items, got %d", report.ItemsAccepted)
	}
	if report.ItemsDuplicate != 0 {
		t.Errorf("expected no duplicates on first cycle, got %d", report.ItemsDuplicate)
	}

	// Every accepted item fans out exactly one event.
	for i := 0; i < 3; i++ {
		select {
		case ev := <-h.sink.Events():
			if ev.Fingerprint == "" || ev.Title == "" {
				t.Errorf("incomplete event: %+v", ev)
			}
			if _, ok := h.cache.Get(ev.Fingerprint); !ok {
				t.Errorf("accepted item %s missing from cache", ev.Fingerprint)
			}
			rec, err := h.store.GetSeen(ctx, ev.Fingerprint)
			if err != nil || rec == nil {
				t.Errorf("accepted item %s missing seen record: %v", ev.Fingerprint, err)
			}
		default:
			t.Fatalf("expected 3 events, got %d", i)
		}
	}

	items, err := h.store.FetchItems(ctx, 10, nil)
	if err != nil {
		t.Fatalf("FetchItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 stored items, got %d", len(items))
	}
	for _, it := range items {
		if !it.PublishedAt.Valid {
			t.Errorf("item %s: items without a feed date must fall back to fetch time", it.Fingerprint)
		}
	}
}

func TestSecondCycleIsAllDuplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("feed-1", srv.URL)})
	ctx := context.Background()

	first := h.crawler.RunCycle(ctx, true)
	if first.ItemsAccepted != 3 {
		t.Fatalf("first cycle must accept 3 items, got %d", first.ItemsAccepted)
	}

	var fp string
	select {
	case ev := <-h.sink.Events():
		fp = ev.Fingerprint
	default:
		t.Fatal("no event from first cycle")
	}
	before, err := h.store.GetSeen(ctx, fp)
	if err != nil || before == nil {
		t.Fatalf("seen record missing: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	second := h.crawler.RunCycle(ctx, true)
	if second.ItemsAccepted != 0 {
		t.Errorf("second cycle must accept nothing, got %d", second.ItemsAccepted)
	}
	if second.ItemsDuplicate != 3 {
		t.Errorf("second cycle must see 3 duplicates, got %d", second.ItemsDuplicate)
	}

	after, err := h.store.GetSeen(ctx, fp)
	if err != nil || after == nil {
		t.Fatalf("seen record missing after second cycle: %v", err)
	}
	if !after.LastSeenAt.After(before.LastSeenAt) {
		t.Error("re-observation must bump last_seen_at")
	}
	if !after.FirstSeenAt.Equal(before.FirstSeenAt) {
		t.Error("first_seen_at must be stable across cycles")
	}
}

func TestCycleIsolatesFailingSources(t *testing.T) {
	// Each good path serves one item unique to that path, so three good
	// sources contribute three distinct items.
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
			<item><title>Item %s</title><link>https://example.com%s</link></item>
			</channel></rss>`, r.URL.Path, r.URL.Path)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer bad.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{
		feedSource("good-1", good.URL+"/a"),
		feedSource("good-2", good.URL+"/b"),
		feedSource("good-3", good.URL+"/c"),
		feedSource("bad-1", bad.URL),
		feedSource("bad-2", bad.URL+"/other"),
	})

	report := h.crawler.RunCycle(context.Background(), true)

	if report.SourcesOK != 3 {
		t.Errorf("expected 3 OK sources, got %d", report.SourcesOK)
	}
	if report.SourcesFailed != 2 {
		t.Errorf("expected 2 failed sources, got %d", report.SourcesFailed)
	}
	if report.ItemsAccepted != 3 {
		t.Errorf("good sources must still land their items, got %d", report.ItemsAccepted)
	}

	outcomes := make(map[string]bool, len(report.Outcomes))
	for _, o := range report.Outcomes {
		outcomes[o.SourceID] = o.OK
		if !o.OK && o.Error == "" {
			t.Errorf("failed source %s must carry an error string", o.SourceID)
		}
	}
	for _, id := range []string{"good-1", "good-2", "good-3"} {
		if !outcomes[id] {
			t.Errorf("source %s must be OK: %v", id, outcomes)
		}
	}
	for _, id := range []string{"bad-1", "bad-2"} {
		if outcomes[id] {
			t.Errorf("source %s must be failed: %v", id, outcomes)
		}
	}
}

func TestPeriodicCycleHonorsSourceIntervals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	slow := feedSource("slow-1", srv.URL)
	slow.IntervalS = 3600

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{slow})
	ctx := context.Background()

	first := h.crawler.RunCycle(ctx, false)
	if len(first.Outcomes) != 1 {
		t.Fatalf("never-run source must be due, got %d outcomes", len(first.Outcomes))
	}

	second := h.crawler.RunCycle(ctx, false)
	if len(second.Outcomes) != 0 {
		t.Errorf("source inside its interval must be skipped, got %d outcomes", len(second.Outcomes))
	}

	forced := h.crawler.RunCycle(ctx, true)
	if len(forced.Outcomes) != 1 {
		t.Errorf("forced cycle must override the schedule, got %d outcomes", len(forced.Outcomes))
	}
}

func TestDefaultIntervalSourceDueEveryTick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("feed-1", srv.URL)})
	ctx := context.Background()

	// A source riding the global ticker must be fetched on every periodic
	// cycle; ticks land slightly after the interval boundary, so gating it
	// against the previous cycle-start timestamp would skip it.
	for i := 0; i < 3; i++ {
		report := h.crawler.RunCycle(ctx, false)
		if len(report.Outcomes) != 1 {
			t.Fatalf("cycle %d: default-interval source must be due, got %d outcomes", i, len(report.Outcomes))
		}
	}
}

func TestReloadReplacesSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("old-1", srv.URL)})
	ctx := context.Background()

	report := h.crawler.RunCycle(ctx, true)
	if len(report.Outcomes) != 1 || report.Outcomes[0].SourceID != "old-1" {
		t.Fatalf("unexpected initial outcomes: %+v", report.Outcomes)
	}

	replacement := &config.SourceFile{Sources: []config.Source{
		feedSource("new-1", srv.URL+"/new"),
	}}
	if err := h.crawler.Reload(replacement); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	report = h.crawler.RunCycle(ctx, true)
	if len(report.Outcomes) != 1 || report.Outcomes[0].SourceID != "new-1" {
		t.Errorf("reloaded list must replace the old one wholesale: %+v", report.Outcomes)
	}
}

func TestReloadRejectsInvalidListKeepsCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("feed-1", srv.URL)})

	broken := &config.SourceFile{Sources: []config.Source{
		{ID: "html-1", URL: "https://example.com", Kind: config.KindHTML, Enabled: true},
	}}
	if err := h.crawler.Reload(broken); err == nil {
		t.Fatal("html source without selectors must be rejected on reload")
	}

	report := h.crawler.RunCycle(context.Background(), true)
	if len(report.Outcomes) != 1 || report.Outcomes[0].SourceID != "feed-1" {
		t.Errorf("rejected reload must leave the current list active: %+v", report.Outcomes)
	}
}

func TestReportPersistedAndRestored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("feed-1", srv.URL)})
	ctx := context.Background()

	report := h.crawler.RunCycle(ctx, true)

	stored, err := h.store.LastReport(ctx)
	if err != nil {
		t.Fatalf("LastReport failed: %v", err)
	}
	if stored == nil {
		t.Fatal("cycle report must be persisted")
	}
	if stored.CycleID != report.CycleID || stored.ItemsAccepted != report.ItemsAccepted {
		t.Errorf("stored report diverges: %+v vs %+v", stored, report)
	}
	if len(stored.Outcomes) != 1 || stored.Outcomes[0].SourceID != "feed-1" {
		t.Errorf("outcomes not round-tripped: %+v", stored.Outcomes)
	}

	if got := h.crawler.LastReport(); got == nil || got.CycleID != report.CycleID {
		t.Error("LastReport must expose the finished cycle")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	h := newHarness(t, cfg, []config.Source{feedSource("feed-1", srv.URL)})

	if err := h.crawler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.crawler.LastReport() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.crawler.LastReport() == nil {
		t.Fatal("startup cycle never finished")
	}

	h.crawler.Stop()
}

func TestNewRejectsBrokenSelectorConfig(t *testing.T) {
	cfg := testConfig(t)
	src := config.Source{ID: "html-1", URL: "https://example.com", Kind: config.KindHTML, Enabled: true}

	sf := &config.SourceFile{Sources: []config.Source{src}}
	_, err := New(cfg, sf, nil, nil, nil, nil, nil, zerolog.Nop())
	if err == nil {
		t.Fatal("html source without selectors must fail at construction")
	}
}
