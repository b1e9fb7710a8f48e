package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/database"
	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/pipeline"
	"github.com/nao1215/mentionscan/internal/scheduler"
	"github.com/nao1215/mentionscan/internal/session"
)

// skipIfShort skips the test if -short flag is set.
// The integration tests run a local HTTP backend and a real SQLite
// database, which is more than the unit suite should pay for.
func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// testCredentials supplies fixed login credentials without consulting
// the environment or prompting.
func testCredentials(_ context.Context) (username, password string, err error) {
	return "reporter", "hunter2", nil
}

// testAnalyticsServer is a local stand-in for the analytics backend. It
// implements the session endpoint, the count endpoint, the search page,
// and the health endpoint, with per-term switches for rate limiting and
// outages so a test can steer each subject down a different tier.
type testAnalyticsServer struct {
	httpServer *http.Server
	listener   net.Listener
	url        string

	mu     sync.Mutex
	logins int
	token  string

	// invalidateFirst rejects the first issued token on data endpoints,
	// simulating a backend that killed the session server-side.
	invalidateFirst bool

	// counts maps a search term to the count endpoint's answer.
	counts map[string]int

	// throttle maps a search term to how many 429 responses the count
	// endpoint serves before answering.
	throttle map[string]int

	// brokenAPI marks terms whose count endpoint always answers 500.
	brokenAPI map[string]bool

	// pageCounts maps a search term to the search page's result counter.
	// Terms absent from the map get a 500 from the page as well.
	pageCounts map[string]int
}

// startTestAnalyticsServer starts the backend stub on a loopback port.
func startTestAnalyticsServer(t *testing.T) *testAnalyticsServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	s := &testAnalyticsServer{
		listener:   listener,
		url:        "http://" + listener.Addr().String(),
		counts:     make(map[string]int),
		throttle:   make(map[string]int),
		brokenAPI:  make(map[string]bool),
		pageCounts: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", s.handleLogin)
	mux.HandleFunc("GET /api/v1/search/count", s.handleCount)
	mux.HandleFunc("GET /search", s.handleSearchPage)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			t.Logf("HTTP server error: %v", err)
		}
	}()

	return s
}

// stop cleans up the backend stub.
func (s *testAnalyticsServer) stop(t *testing.T) {
	t.Helper()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

// loginCount returns how many logins the backend has served.
func (s *testAnalyticsServer) loginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// authorized checks the bearer token against the latest issued one.
func (s *testAnalyticsServer) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidateFirst && token == "token-1" {
		return false
	}
	return token == s.token
}

func (s *testAnalyticsServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	s.logins++
	token := fmt.Sprintf("token-%d", s.logins)
	s.token = token
	cookie := fmt.Sprintf("cookie-%d", s.logins)
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "analytics_session", Value: cookie, Path: "/"})
	w.Header().Set("Content-Type", "application/json")
	expires := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	fmt.Fprintf(w, `{"token": %q, "expires_at": %q}`, token, expires)
}

func (s *testAnalyticsServer) handleCount(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	term := r.URL.Query().Get("term")
	s.mu.Lock()
	if s.throttle[term] > 0 {
		s.throttle[term]--
		s.mu.Unlock()
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	broken := s.brokenAPI[term]
	count, known := s.counts[term]
	s.mu.Unlock()

	if broken || !known {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"count": %d}`, count)
}

func (s *testAnalyticsServer) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	term := r.URL.Query().Get("q")
	s.mu.Lock()
	count, known := s.pageCounts[term]
	s.mu.Unlock()

	if !known {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Search results</title></head>
<body>
<h1>Search</h1>
<p>Results for %s:</p>
<span id="result-count">%d</span>
</body>
</html>`, term, count)
}

func (s *testAnalyticsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// TestIntegrationReportPipeline runs the full report path against the
// local backend: login, concurrent count queries, rate-limit retry, the
// search page fallback, aggregation, database storage, and rendering.
//
// Each subject takes a different route:
//   - aurora answers on the first count request
//   - borealis is rate limited once, then answers
//   - cascade's count endpoint is down, the search page supplies the count
//   - ghost is down on both tiers and must come back unavailable
func TestIntegrationReportPipeline(t *testing.T) {
	skipIfShort(t)

	testServer := startTestAnalyticsServer(t)
	defer testServer.stop(t)
	testServer.counts["aurora"] = 12
	testServer.counts["borealis"] = 7
	testServer.throttle["borealis"] = 1
	testServer.brokenAPI["cascade"] = true
	testServer.pageCounts["cascade"] = 3
	testServer.brokenAPI["ghost"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.NewConfig()
	cfg.Endpoint = testServer.url
	cfg.RetryBase = time.Millisecond
	cfg.Concurrency = 2
	cfg.Format = config.FormatText
	for _, handle := range []string{"aurora", "borealis", "cascade", "ghost"} {
		cfg.Subjects = append(cfg.Subjects, model.MustNewSubject(handle))
	}

	client, err := newAnalyticsClient(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("expected health endpoint to be reachable: %v", err)
	}

	sessions := session.NewManager(session.NewStore(t.TempDir()), client,
		session.WithCredentials(testCredentials))

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var buf bytes.Buffer
	p := newReportPipeline(cfg, client, sessions, db, nil, &buf, logger)

	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	period, err := model.NewRange(start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("failed to build period: %v", err)
	}

	run := pipeline.NewRun(model.ReportKindWeekly, period, "UTC", cfg.Subjects)
	if err := p.Execute(ctx, run); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if run.Err != nil {
		t.Fatalf("expected no step error, got: %v", run.Err)
	}

	report := run.Report
	if report == nil {
		t.Fatal("expected an aggregated report")
	}
	if report.Total != 22 {
		t.Errorf("expected total 22, got %d", report.Total)
	}
	if report.ResolvedCount != 3 {
		t.Errorf("expected 3 resolved subjects, got %d", report.ResolvedCount)
	}
	if report.UnavailableCount != 1 {
		t.Errorf("expected 1 unavailable subject, got %d", report.UnavailableCount)
	}
	if len(report.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(report.Results))
	}

	// Results must come back in roster order regardless of which query
	// finished first.
	for i, want := range []string{"aurora", "borealis", "cascade", "ghost"} {
		if got := report.Results[i].Handle; got != want {
			t.Errorf("expected result %d to be %q, got %q", i, want, got)
		}
	}

	aurora := report.Results[0].Count
	if aurora.Unavailable || aurora.Value != 12 || aurora.Source != model.CountSourceAPI {
		t.Errorf("unexpected aurora count: %+v", aurora)
	}
	borealis := report.Results[1].Count
	if borealis.Value != 7 || borealis.Attempts != 2 {
		t.Errorf("expected borealis resolved on the second attempt, got %+v", borealis)
	}
	cascade := report.Results[2].Count
	if cascade.Value != 3 || cascade.Source != model.CountSourceFallback {
		t.Errorf("expected cascade to come from the search page, got %+v", cascade)
	}
	ghost := report.Results[3].Count
	if !ghost.Unavailable {
		t.Error("expected ghost to be unavailable")
	}
	if !strings.Contains(ghost.Reason, "count API") || !strings.Contains(ghost.Reason, "search page") {
		t.Errorf("expected ghost reason to name both tiers, got %q", ghost.Reason)
	}

	// Four subjects, one session: the login must have happened exactly once.
	if got := testServer.loginCount(); got != 1 {
		t.Errorf("expected exactly one login for the run, got %d", got)
	}

	stored, err := db.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("expected report in database: %v", err)
	}
	if stored.Total != report.Total {
		t.Errorf("expected stored total %d, got %d", report.Total, stored.Total)
	}
	history, err := db.SubjectHistory(ctx, "aurora", 0)
	if err != nil {
		t.Fatalf("failed to load subject history: %v", err)
	}
	if len(history) != 1 || history[0].Count.Value != 12 {
		t.Errorf("expected one stored aurora count of 12, got %+v", history)
	}

	output := buf.String()
	for _, want := range []string{"MENTIONSCAN REPORT", "Aurora", "n/a", "TOTAL MENTIONS: 22"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected rendered report to contain %q", want)
		}
	}
}

// TestIntegrationSessionRefresh invalidates the first session server-side
// and checks that the concurrent queries recover through a single
// re-login instead of one login per query.
func TestIntegrationSessionRefresh(t *testing.T) {
	skipIfShort(t)

	testServer := startTestAnalyticsServer(t)
	defer testServer.stop(t)
	testServer.invalidateFirst = true

	terms := []string{"aurora", "borealis", "cascade", "delta"}
	for i, term := range terms {
		testServer.counts[term] = (i + 1) * 10
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.NewConfig()
	cfg.Endpoint = testServer.url
	cfg.RetryBase = time.Millisecond
	cfg.Concurrency = len(terms)
	cfg.Format = config.FormatText
	for _, term := range terms {
		cfg.Subjects = append(cfg.Subjects, model.MustNewSubject(term))
	}

	client, err := newAnalyticsClient(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	sessions := session.NewManager(session.NewStore(t.TempDir()), client,
		session.WithCredentials(testCredentials))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var buf bytes.Buffer
	p := newReportPipeline(cfg, client, sessions, nil, nil, &buf, logger)

	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	period, err := model.NewRange(start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("failed to build period: %v", err)
	}

	run := pipeline.NewRun(model.ReportKindWeekly, period, "UTC", cfg.Subjects)
	if err := p.Execute(ctx, run); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if run.Report.UnavailableCount != 0 {
		t.Fatalf("expected every subject to resolve after the refresh, got %+v", run.Report.Results)
	}
	if run.Report.Total != 100 {
		t.Errorf("expected total 100, got %d", run.Report.Total)
	}

	// One bootstrap login plus exactly one refresh login, however the
	// rejected queries interleave.
	if got := testServer.loginCount(); got != 2 {
		t.Errorf("expected the rejected session to cause exactly one re-login, got %d logins", got)
	}
}

// TestIntegrationSchedulerFiresOnce runs the scheduler over a real
// database and checks that a due window fires exactly once, that the
// fired window is sealed in the store, and that a restart over the same
// store does not fire it again.
func TestIntegrationSchedulerFiresOnce(t *testing.T) {
	skipIfShort(t)

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// A weekly trigger anchored at the current weekday and clock time is
	// already due, so the scheduler's first check fires it.
	now := time.Now().UTC()
	trigger := scheduler.NewWeeklyTrigger("weekly", now.Weekday(), now.Hour(), now.Minute(), time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var fires atomic.Int32
	dueCh := make(chan time.Time, 1)
	job := func(_ context.Context, kind model.ReportKind, due time.Time) error {
		if kind != model.ReportKindWeekly {
			t.Errorf("expected weekly job, got %q", kind)
		}
		fires.Add(1)
		select {
		case dueCh <- due:
		default:
		}
		cancel()
		return nil
	}

	sched, err := scheduler.New(db, job, []scheduler.Trigger{trigger},
		scheduler.WithPollInterval(10*time.Millisecond),
		scheduler.WithSchedulerLogger(logger))
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	if err := sched.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected run to end with cancellation, got %v", err)
	}
	if got := fires.Load(); got != 1 {
		t.Fatalf("expected exactly one fire, got %d", got)
	}

	var due time.Time
	select {
	case due = <-dueCh:
	default:
		t.Fatal("job did not report its due instant")
	}

	key, err := db.LastFired(context.Background(), "weekly")
	if err != nil {
		t.Fatalf("failed to load fired state: %v", err)
	}
	if want := trigger.WindowKey(due); key != want {
		t.Errorf("expected fired window %q to be sealed, got %q", want, key)
	}

	// Restart over the same store: the sealed window must not fire again.
	rerunCtx, rerunCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer rerunCancel()

	rerun, err := scheduler.New(db, job, []scheduler.Trigger{trigger},
		scheduler.WithPollInterval(10*time.Millisecond),
		scheduler.WithSchedulerLogger(logger))
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	if err := rerun.Run(rerunCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected rerun to end at its deadline, got %v", err)
	}
	if got := fires.Load(); got != 1 {
		t.Errorf("expected no refire after restart, got %d fires", got)
	}
}
