package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/STRATINT/newsdesk/internal/auth"
	"github.com/STRATINT/newsdesk/internal/config"
	"github.com/STRATINT/newsdesk/internal/ingestion"
	"github.com/STRATINT/newsdesk/internal/ledger"
	"github.com/STRATINT/newsdesk/internal/logging"
	"github.com/STRATINT/newsdesk/internal/metrics"
	"github.com/STRATINT/newsdesk/internal/models"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	err     error
	filters []ingestion.SourceFilter
	result  *ingestion.PassResult
	async   chan ingestion.SourceFilter
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) RunOnce(_ context.Context, filter ingestion.SourceFilter) (*ingestion.PassResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRunner) RunOnceAsync(_ context.Context, filter ingestion.SourceFilter) <-chan ingestion.PassResult {
	if f.async != nil {
		f.async <- filter
	}
	ch := make(chan ingestion.PassResult, 1)
	ch <- ingestion.PassResult{}
	close(ch)
	return ch
}

type fakeCleaner struct {
	days    []int
	deleted int64
	err     error
}

func (f *fakeCleaner) Cleanup(_ context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	return f.deleted, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fixture struct {
	handler http.Handler
	runner  *fakeRunner
	cleaner *fakeCleaner
	store   *ingestion.MemoryStore
	token   string
}

func newFixture(t *testing.T, pingErr error) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	authn := auth.New(config.AuthConfig{JWTSecret: "secret", AdminPasswordHash: string(hash), TokenDuration: time.Hour})
	token, _, err := authn.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	httpMetrics, err := metrics.NewHTTPCollector()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	store := ingestion.NewMemoryStore()
	runner := &fakeRunner{result: &ingestion.PassResult{PassID: "pass-1"}}
	cleaner := &fakeCleaner{deleted: 7}
	handler := Router(Deps{
		Runner:        runner,
		Cleaner:       cleaner,
		Ledger:        ledger.New(store),
		Health:        fakePinger{err: pingErr},
		Auth:          authn,
		Metrics:       httpMetrics,
		RetentionDays: 30,
		Logger:        logging.Discard(),
	})
	return &fixture{handler: handler, runner: runner, cleaner: cleaner, store: store, token: token}
}

func (f *fixture) do(t *testing.T, method, target, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[healthResponse](t, rec); got.Status != "ok" {
		t.Fatalf("status field = %q", got.Status)
	}

	down := newFixture(t, errors.New("connection refused"))
	rec = down.do(t, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"password":"letmein"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if got := decode[LoginResponse](t, rec); got.Token == "" {
		t.Fatal("empty token")
	}

	rec = f.do(t, http.MethodPost, "/api/auth/login", `{"password":"nope"}`, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/auth/login", `{`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCollect_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/collect?wait=true", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(f.runner.filters) != 0 {
		t.Fatal("runner should not be called without a token")
	}
}

func TestCollect_Wait(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = &ingestion.PassResult{
		PassID: "pass-1",
		Runs: []models.CollectionRun{
			{SourceName: "Wire", Status: models.RunStatusSuccess, ArticlesFound: 3, ArticlesProcessed: 3, ArticlesNew: 3},
		},
	}

	rec := f.do(t, http.MethodPost, "/api/collect?wait=true&source=Wire&kind=rss&language=en", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	got := decode[collectResponse](t, rec)
	if got.Totals == nil || got.Totals.New != 3 || got.Totals.Succeeded != 1 {
		t.Fatalf("totals = %+v", got.Totals)
	}

	want := ingestion.SourceFilter{Name: "Wire", Kind: models.SourceKindRSS, Language: "en"}
	if len(f.runner.filters) != 1 || f.runner.filters[0] != want {
		t.Fatalf("filters = %+v, want [%+v]", f.runner.filters, want)
	}
}

func TestCollect_Conflict(t *testing.T) {
	f := newFixture(t, nil)

	f.runner.err = ingestion.ErrPassInProgress
	if rec := f.do(t, http.MethodPost, "/api/collect?wait=true", "", true); rec.Code != http.StatusConflict {
		t.Fatalf("wait: status = %d, want 409", rec.Code)
	}

	f.runner.running = true
	if rec := f.do(t, http.MethodPost, "/api/collect", "", true); rec.Code != http.StatusConflict {
		t.Fatalf("async: status = %d, want 409", rec.Code)
	}
}

func TestCollect_Async(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.async = make(chan ingestion.SourceFilter, 1)

	rec := f.do(t, http.MethodPost, "/api/collect?kind=social", "", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	select {
	case filter := <-f.runner.async:
		if filter.Kind != models.SourceKindSocial {
			t.Fatalf("kind = %q, want social", filter.Kind)
		}
	default:
		t.Fatal("background pass was not started")
	}
}

func TestCollect_UnknownKind(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/collect?kind=carrier-pigeon", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/maintenance/cleanup", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[cleanupResponse](t, rec); got.Days != 30 || got.Deleted != 7 {
		t.Fatalf("response = %+v", got)
	}

	if rec := f.do(t, http.MethodPost, "/api/maintenance/cleanup?days=10", "", true); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, bad := range []string{"0", "-3", "ten"} {
		if rec := f.do(t, http.MethodPost, "/api/maintenance/cleanup?days="+bad, "", true); rec.Code != http.StatusBadRequest {
			t.Fatalf("days=%s: status = %d, want 400", bad, rec.Code)
		}
	}
	if got := f.cleaner.days; len(got) != 2 || got[0] != 30 || got[1] != 10 {
		t.Fatalf("cleanup days = %v, want [30 10]", got)
	}

	if rec := f.do(t, http.MethodPost, "/api/maintenance/cleanup", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: status = %d, want 401", rec.Code)
	}
}

func TestLedger(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []models.CollectionRun{
		{SourceID: 1, SourceName: "Wire", StartedAt: base, Status: models.RunStatusSuccess, ArticlesFound: 4, ArticlesProcessed: 4, ArticlesNew: 4},
		{SourceID: 1, SourceName: "Wire", StartedAt: base.Add(time.Hour), Status: models.RunStatusFailed},
		{SourceID: 2, SourceName: "Blog", StartedAt: base.Add(2 * time.Hour), Status: models.RunStatusSuccess},
	}
	for i := range runs {
		if err := f.store.RecordCollectionRun(ctx, &runs[i]); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/ledger?source_id=1", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	report := decode[ledger.Report](t, rec)
	if len(report.Sources) != 1 || report.Sources[0].SourceName != "Wire" {
		t.Fatalf("sources = %+v", report.Sources)
	}
	if report.Total.Runs != 2 || report.Total.New != 4 || report.Total.Failed != 1 {
		t.Fatalf("total = %+v", report.Total)
	}

	rec = f.do(t, http.MethodGet, "/api/ledger?since=2025-03-01T13:00:00Z&until=2025-03-01T15:00:00Z", "", false)
	report = decode[ledger.Report](t, rec)
	if report.Total.Runs != 2 {
		t.Fatalf("windowed runs = %d, want 2", report.Total.Runs)
	}
}

func TestLedger_BadQuery(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{
		"since=yesterday",
		"until=2025-13-01T00:00:00Z",
		"since=2025-03-02T00:00:00Z&until=2025-03-01T00:00:00Z",
		"source_id=abc",
		"days=0",
	} {
		if rec := f.do(t, http.MethodGet, "/api/ledger?"+q, "", false); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/api/collect", "", true); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/healthz", "", false)

	rec := f.do(t, http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `newsdesk_http_requests_total{method="GET",path="GET /healthz",status="200"} 1`) {
		t.Fatalf("healthz request not recorded:\n%s", rec.Body.String())
	}
}
