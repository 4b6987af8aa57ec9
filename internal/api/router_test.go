package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/config"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/repository"
	"github.com/kitade/kita-jobs/internal/service"
	"github.com/kitade/kita-jobs/internal/source"
)

type stubKitaSource struct {
	gate chan struct{}
}

func (s *stubKitaSource) GetSourceID() string { return "stub-directory" }

func (s *stubKitaSource) ListBezirke(_ context.Context, stateURL string) ([]domain.Bezirk, error) {
	if strings.Contains(stateURL, "broken") {
		return nil, &source.FetchError{URL: stateURL, StatusCode: http.StatusForbidden, Body: "blocked"}
	}
	return []domain.Bezirk{{Name: "Mitte", URL: stateURL + "/mitte"}}, nil
}

func (s *stubKitaSource) ListKitas(ctx context.Context, b domain.Bezirk, limit int) ([]domain.KitaRef, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []domain.KitaRef{{Name: "Kita Eins", URL: b.URL + "/1"}, {Name: "Kita Zwei", URL: b.URL + "/2"}}, nil
}

func (s *stubKitaSource) ExtractKita(_ context.Context, ref domain.KitaRef) (*domain.Kita, error) {
	return &domain.Kita{Name: ref.Name, SourceURL: ref.URL, City: "Berlin"}, nil
}

type stubKnowledgeSource struct{}

func (stubKnowledgeSource) GetSourceID() string { return "stub-blog" }

func (stubKnowledgeSource) FetchPosts(_ context.Context, page, perPage int) ([]domain.KnowledgePost, int, error) {
	return []domain.KnowledgePost{{WPID: 1, Slug: "start", Title: "Start"}}, 1, nil
}

func (stubKnowledgeSource) FetchPost(_ context.Context, id int) (*domain.KnowledgePost, error) {
	return &domain.KnowledgePost{WPID: id, Slug: "post", Title: "Post"}, nil
}

func (stubKnowledgeSource) SearchPosts(_ context.Context, term string, limit int) ([]domain.KnowledgePostSummary, error) {
	return []domain.KnowledgePostSummary{{WPID: 1, Title: term}}, nil
}

type stubStore struct{}

func (stubStore) UpsertKita(context.Context, *domain.Kita) error          { return nil }
func (stubStore) UpsertPost(context.Context, *domain.KnowledgePost) error { return nil }

type stubKitaReader struct{}

func (stubKitaReader) GetByID(_ context.Context, id uint) (*domain.Kita, error) {
	if id != 1 {
		return nil, repository.ErrNotFound
	}
	return &domain.Kita{ID: 1, Name: "Kita Eins"}, nil
}

func (stubKitaReader) List(_ context.Context, f repository.KitaFilter) ([]domain.Kita, int64, error) {
	if f.City == "Nirgendwo" {
		return nil, 0, nil
	}
	return []domain.Kita{{ID: 1, Name: "Kita Eins", City: f.City}}, 1, nil
}

type stubRunReader struct{ limit *int }

func (r stubRunReader) ListRecent(_ context.Context, limit int) ([]domain.ImportRun, error) {
	*r.limit = limit
	return []domain.ImportRun{{ID: "run-1", Kind: domain.JobKindKitas, Status: domain.JobStatusCompleted}}, nil
}

type testServer struct {
	router *gin.Engine
	gate   chan struct{}
}

func newTestServer(t *testing.T, withReaders bool) *testServer {
	t.Helper()
	gate := make(chan struct{})
	registry := service.NewJobRegistry(0)
	deps := Dependencies{
		Imports: service.NewImportService(service.ImportConfig{
			Registry: registry,
			Source:   &stubKitaSource{gate: gate},
			Store:    stubStore{},
		}),
		Knowledge: service.NewKnowledgeService(service.KnowledgeConfig{
			Registry: registry,
			Source:   stubKnowledgeSource{},
			Store:    stubStore{},
		}),
		Registry: registry,
	}
	if withReaders {
		deps.Kitas = stubKitaReader{}
		deps.Runs = stubRunReader{limit: new(int)}
	}
	cfg := &config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowedOrigins: []string{"http://admin.test"}}}
	return &testServer{router: SetupRouter(deps, cfg), gate: gate}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func (s *testServer) waitStatus(t *testing.T, jobID string) domain.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := s.do(http.MethodGet, "/api/import/status/"+jobID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d", w.Code)
		}
		var snap domain.ImportJob
		decode(t, w, &snap)
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return domain.ImportJob{}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	w := s.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"disabled"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "admin-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "admin-42" {
		t.Errorf("X-Request-ID = %q, want admin-42", got)
	}
}

func TestListBezirkeEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	if w := s.do(http.MethodGet, "/api/import/bezirke", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing param: code = %d", w.Code)
	}

	w := s.do(http.MethodGet, "/api/import/bezirke?bundeslandUrl=http://dir.test/berlin", "")
	var bezirke []domain.Bezirk
	decode(t, w, &bezirke)
	if w.Code != http.StatusOK || len(bezirke) != 1 || bezirke[0].Name != "Mitte" {
		t.Errorf("bezirke = %d %+v", w.Code, bezirke)
	}

	w = s.do(http.MethodGet, "/api/import/bezirke?bundeslandUrl=http://dir.test/broken", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("fetch error: code = %d", w.Code)
	}
	var body struct {
		Error      string `json:"error"`
		StatusCode int    `json:"statusCode"`
		Body       string `json:"body"`
	}
	decode(t, w, &body)
	if body.StatusCode != http.StatusForbidden || body.Body != "blocked" || body.Error == "" {
		t.Errorf("error body = %+v", body)
	}
}

func TestImportLifecycle(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(http.MethodPost, "/api/import/start", `{"dryRun":true,"bezirke":[],"kitaLimitPerBezirk":5}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty bezirke: code = %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/import/start", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: code = %d", w.Code)
	}

	w = s.do(http.MethodPost, "/api/import/start", `{"dryRun":true,"bezirke":[{"name":"Mitte","url":"http://dir.test/mitte"}],"kitaLimitPerBezirk":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start: code = %d body = %s", w.Code, w.Body.String())
	}
	var started struct {
		JobID string `json:"jobId"`
	}
	decode(t, w, &started)

	if w := s.do(http.MethodGet, "/api/import/results/"+started.JobID, ""); w.Code != http.StatusConflict {
		t.Errorf("results while running: code = %d", w.Code)
	}

	close(s.gate)
	snap := s.waitStatus(t, started.JobID)
	if snap.Status != domain.JobStatusCompleted || snap.Progress != 100 || !snap.DryRun || snap.Kind != domain.JobKindKitas {
		t.Errorf("final status = %+v", snap)
	}

	w = s.do(http.MethodGet, "/api/import/results/"+started.JobID, "")
	var kitas []domain.Kita
	decode(t, w, &kitas)
	if w.Code != http.StatusOK || len(kitas) != 2 {
		t.Errorf("results = %d %+v", w.Code, kitas)
	}

	w = s.do(http.MethodGet, "/api/import/jobs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), started.JobID) {
		t.Errorf("jobs = %d %s", w.Code, w.Body.String())
	}
}

func TestUnknownJobIs404(t *testing.T) {
	s := newTestServer(t, false)
	for _, path := range []string{"/api/import/status/nope", "/api/import/results/nope"} {
		if w := s.do(http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s: code = %d", path, w.Code)
		}
	}
}

func TestKnowledgeEndpoints(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(http.MethodPost, "/api/import/knowledge/specific", `{"postIds":[3,4],"dryRun":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("specific: code = %d body = %s", w.Code, w.Body.String())
	}
	var accepted service.AcceptedJob
	decode(t, w, &accepted)
	if accepted.JobID == "" || accepted.StatusURL != "/api/import/status/"+accepted.JobID || accepted.Message == "" {
		t.Errorf("accepted = %+v", accepted)
	}
	s.waitStatus(t, accepted.JobID)

	w = s.do(http.MethodGet, "/api/import/results/"+accepted.JobID, "")
	var posts []domain.KnowledgePost
	decode(t, w, &posts)
	if w.Code != http.StatusOK || len(posts) != 2 {
		t.Errorf("results = %d %+v", w.Code, posts)
	}

	w = s.do(http.MethodPost, "/api/import/knowledge", `{"limit":10,"page":1,"totalPagesToFetch":1,"dryRun":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("knowledge import: code = %d", w.Code)
	}
	var started struct {
		JobID string `json:"jobId"`
	}
	decode(t, w, &started)
	s.waitStatus(t, started.JobID)
	if w := s.do(http.MethodGet, "/api/import/results/"+started.JobID, ""); w.Code != http.StatusConflict {
		t.Errorf("live results: code = %d", w.Code)
	}

	if w := s.do(http.MethodPost, "/api/import/knowledge", `{"limit":500,"page":1,"totalPagesToFetch":1}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: code = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/import/knowledge/preview?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("preview bad limit: code = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/import/knowledge/preview", ""); w.Code != http.StatusOK {
		t.Errorf("preview: code = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/import/knowledge/search", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty search: code = %d", w.Code)
	}
	w = s.do(http.MethodGet, "/api/import/knowledge/search?term=Schlaf", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Schlaf") {
		t.Errorf("search = %d %s", w.Code, w.Body.String())
	}
}

func TestReadEndpointsRegisteredOnlyWithDatabase(t *testing.T) {
	without := newTestServer(t, false)
	if w := without.do(http.MethodGet, "/api/kitas", ""); w.Code != http.StatusNotFound {
		t.Errorf("without readers: code = %d", w.Code)
	}

	s := newTestServer(t, true)
	w := s.do(http.MethodGet, "/api/kitas?city=Berlin&limit=5", "")
	var list struct {
		Kitas []domain.Kita `json:"kitas"`
		Total int64         `json:"total"`
	}
	decode(t, w, &list)
	if w.Code != http.StatusOK || list.Total != 1 || list.Kitas[0].City != "Berlin" {
		t.Errorf("list = %d %+v", w.Code, list)
	}

	w = s.do(http.MethodGet, "/api/kitas?city=Nirgendwo", "")
	if !strings.Contains(w.Body.String(), `"kitas":[]`) {
		t.Errorf("empty list body = %s", w.Body.String())
	}

	if w := s.do(http.MethodGet, "/api/kitas/1", ""); w.Code != http.StatusOK {
		t.Errorf("get: code = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/kitas/2", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing: code = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/kitas/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: code = %d", w.Code)
	}
}

func TestListRunsClampsLimit(t *testing.T) {
	limit := 0
	registry := service.NewJobRegistry(0)
	deps := Dependencies{
		Imports:   service.NewImportService(service.ImportConfig{Registry: registry, Source: &stubKitaSource{}}),
		Knowledge: service.NewKnowledgeService(service.KnowledgeConfig{Registry: registry, Source: stubKnowledgeSource{}}),
		Registry:  registry,
		Runs:      stubRunReader{limit: &limit},
	}
	router := SetupRouter(deps, &config.ServerConfig{Mode: "test"})

	req := httptest.NewRequest(http.MethodGet, "/api/import/runs?limit=500", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if limit != 100 {
		t.Errorf("limit = %d, want 100", limit)
	}
	if !strings.Contains(w.Body.String(), `"id":"run-1"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/import/start", nil)
	req.Header.Set("Origin", "http://admin.test")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://admin.test" {
		t.Errorf("preflight = %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}
}
