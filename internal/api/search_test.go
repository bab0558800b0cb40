package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openkb/docbase/internal/document"
	"github.com/openkb/docbase/internal/search"
	"github.com/openkb/docbase/internal/testutil"
)

type fakeSearcher struct {
	resp     *search.Response
	err      error
	failures int64
	gotQuery search.Query
}

func (f *fakeSearcher) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	f.gotQuery = q
	if strings.TrimSpace(q.Text) == "" {
		return nil, search.ErrEmptyQuery
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &search.Response{Query: q.Text, Results: []search.Result{}}, nil
}

func (f *fakeSearcher) Failures() int64 { return f.failures }

func newSearchFixture() (*http.ServeMux, *fakeSearcher, *fakeRegistry) {
	searcher := &fakeSearcher{}
	registry := newFakeRegistry()
	mux := http.NewServeMux()
	NewSearchHandler(searcher, registry, testutil.Logger()).RegisterRoutes(mux)
	return mux, searcher, registry
}

func TestSearch(t *testing.T) {
	mux, searcher, _ := newSearchFixture()
	searcher.resp = &search.Response{
		Query:        "vacation",
		Results:      []search.Result{{Filename: "handbook.pdf", Content: "twenty days", Score: 0.91}},
		TotalResults: 1,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search",
		strings.NewReader(`{"query": "vacation", "k": 3, "category": "hr"}`))
	req.Header.Set("X-Owner-ID", "alice")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}
	if searcher.gotQuery.OwnerID != "alice" {
		t.Errorf("owner = %q, the header must scope the query", searcher.gotQuery.OwnerID)
	}
	if searcher.gotQuery.Category != "hr" {
		t.Errorf("category = %q, want hr", searcher.gotQuery.Category)
	}
	if searcher.gotQuery.TopK != 3 {
		t.Errorf("k = %d, the body parameter must reach the searcher", searcher.gotQuery.TopK)
	}

	var resp search.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TotalResults != 1 || len(resp.Results) != 1 {
		t.Errorf("got %d results, want 1", len(resp.Results))
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	mux, _, _ := newSearchFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearch_InvalidBody(t *testing.T) {
	mux, _, _ := newSearchFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearch_QueryTooLong(t *testing.T) {
	mux, _, _ := newSearchFixture()

	long := strings.Repeat("q", MaxQueryLength+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search",
		strings.NewReader(`{"query": "`+long+`"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStats(t *testing.T) {
	mux, searcher, registry := newSearchFixture()
	searcher.failures = 7
	_, _ = registry.Register(context.Background(), document.NewDocument{OwnerID: "alice"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Owner-ID", "alice")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		TotalDocuments int   `json:"total_documents"`
		SearchFailures int64 `json:"search_failures"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TotalDocuments != 1 {
		t.Errorf("total_documents = %d, want 1", resp.TotalDocuments)
	}
	if resp.SearchFailures != 7 {
		t.Errorf("search_failures = %d, want 7", resp.SearchFailures)
	}
}
