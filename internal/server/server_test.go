package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tabletalk/tabletalk/internal/analytics"
	"github.com/tabletalk/tabletalk/internal/cache"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/execute"
	"github.com/tabletalk/tabletalk/internal/model"
	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/producer"
	"github.com/tabletalk/tabletalk/internal/service"
	"github.com/tabletalk/tabletalk/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sqlx.Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.MustExec(`CREATE TABLE sales (id INTEGER PRIMARY KEY, amount NUMERIC)`)
	db.MustExec(`INSERT INTO sales (amount) VALUES (10), (20)`)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.New(db, "sqlite", "", time.Minute, logger)
	pol := policy.New(map[string][]string{
		"analyst": {"sales"},
		"admin":   {policy.Wildcard},
	})
	st, err := store.New("")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tracker := analytics.New(100)
	pipe := pipeline.New(pipeline.Deps{
		Catalog:      cat,
		Policy:       pol,
		Producer:     producer.New(nil, logger),
		Executor:     execute.New(db, "sqlite", 5*time.Second, 100, logger),
		Cache:        cache.New(16, time.Minute),
		Tracker:      tracker,
		Audit:        st,
		MaxLimit:     1000,
		DefaultLimit: 100,
		Logger:       logger,
	})

	cfg := DefaultConfig()
	cfg.RatePerMinute = 0 // no rate limiting in tests
	return New(cfg, Deps{
		DB:       db,
		Catalog:  cat,
		Policy:   pol,
		Pipeline: pipe,
		Store:    st,
		Auth:     service.NewAuthService("test-secret", time.Hour),
		Tracker:  tracker,
		Logger:   logger,
	})
}

func issueToken(t *testing.T, srv *Server, userID, role string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"user_id": userID, "role": role})
	req := httptest.NewRequest("POST", "/api/v1/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("token issue status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return resp.Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	if _, ok := doc.Paths["/api/v1/query"]; !ok {
		t.Error("missing /api/v1/query path")
	}
}

func TestTokenRequiresUserID(t *testing.T) {
	srv := newTestServer(t)

	// An empty POST must not mint a token.
	bodies := []string{"", `{}`, `{"role":"analyst"}`}
	for _, body := range bodies {
		req := httptest.NewRequest("POST", "/api/v1/auth/token", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestQueryRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewReader([]byte(`{"question":"how many sales"}`))
	req := httptest.NewRequest("POST", "/api/v1/query", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestQueryEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	token := issueToken(t, srv, "u1", "analyst")

	body := bytes.NewReader([]byte(`{"question":"how many sales"}`))
	req := httptest.NewRequest("POST", "/api/v1/query", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}

	var ans model.Answer
	if err := json.NewDecoder(rec.Body).Decode(&ans); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ans.RowCount != 1 || ans.SQL == "" {
		t.Errorf("answer = %+v", ans)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := newTestServer(t)
	analyst := issueToken(t, srv, "u1", "analyst")
	admin := issueToken(t, srv, "a1", "admin")

	routes := []struct {
		method, path string
	}{
		{"POST", "/api/v1/cache/clear"},
		{"GET", "/api/v1/logs"},
		{"GET", "/api/v1/analytics/dashboard"},
		{"GET", "/api/v1/analytics/slowest"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		req.Header.Set("Authorization", "Bearer "+analyst)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s as analyst: status = %d, want 403", rt.method, rt.path, rec.Code)
		}

		req = httptest.NewRequest(rt.method, rt.path, nil)
		req.Header.Set("Authorization", "Bearer "+admin)
		rec = httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s %s as admin: status = %d, want 200", rt.method, rt.path, rec.Code)
		}
	}
}

func TestCacheStatsVisibleToAnyRole(t *testing.T) {
	srv := newTestServer(t)
	token := issueToken(t, srv, "u1", "analyst")

	req := httptest.NewRequest("GET", "/api/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
