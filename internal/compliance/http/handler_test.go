package compliancehttp_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/backend"
	compliancehttp "github.com/regwatch/regwatch/internal/compliance/http"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/shared"
	"github.com/regwatch/regwatch/internal/view"
	_ "github.com/regwatch/regwatch/testing"
)

// stubBackend serves a fixed population of facilities page by page.
type stubBackend struct {
	total int

	mu       sync.Mutex
	status   int
	requests []*url.URL
}

func (b *stubBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, r.URL)
	status := b.status
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
		return
	}
	q := r.URL.Query()
	switch {
	case r.URL.Path == "/filters/facilities":
		_, _ = w.Write([]byte(`[{"key":"state","label":"State","values":["CA","NY"],"default":"all"},{"key":"country","label":"Country","values":["US","DE"],"default":"US"}]`))
	case r.URL.Path == "/facilities" && q.Get("fei_number") != "":
		if q.Get("fei_number") != "eq.1000" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"fei_number":"1000","legal_name":"ACME PHARMA INC","city":"austin","state":"TX","country":"US","inspection_count":"3","last_inspection_date":"2024-05-01"}]`))
	case r.URL.Path == "/facilities":
		start, _ := strconv.Atoi(q.Get("start"))
		length, _ := strconv.Atoi(q.Get("length"))
		rows := make([]string, 0, length)
		for i := start; i < start+length && i < b.total; i++ {
			rows = append(rows, fmt.Sprintf(`{"fei_number":"%d","legal_name":"FIRM %02d"}`, 2000+i, i))
		}
		_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	case r.URL.Path == "/inspections":
		_, _ = w.Write([]byte(`[{"inspection_id":"I-1","fei_number":"1000","legal_name":"ACME PHARMA INC","classification":"VAI"},{"inspection_id":"I-2","fei_number":"1000","legal_name":"ACME PHARMA INC","classification":"NAI"}]`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *stubBackend) calls(path string) []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []url.Values
	for _, u := range b.requests {
		if u.Path == path {
			out = append(out, u.Query())
		}
	}
	return out
}

func (b *stubBackend) fail(status int) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}

type testEnv struct {
	backend  *stubBackend
	registry *compliancehttp.Registry
	router   http.Handler
}

const sessionHeader = "X-Test-Session"

func newTestEnv(t *testing.T, total int, sessionID string) *testEnv {
	t.Helper()
	stub := &stubBackend{total: total}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(srv.URL, 2*time.Second, nil)
	require.NoError(t, err)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	registry := compliancehttp.NewRegistry(time.Minute, nil)
	t.Cleanup(registry.Close)

	handler := compliancehttp.NewHandler(nil, client, catalogFilters{client: client}, templates,
		shared.NewCSRFManager("secret"), registry, nil, compliancehttp.Options{
			PageSize:    20,
			SearchDelay: 80 * time.Millisecond,
			WaitTimeout: 2 * time.Second,
		})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := sessionID
			if override := req.Header.Get(sessionHeader); override != "" {
				id = override
			}
			sess := &shared.Session{ID: id}
			sess.SetUser("1")
			sess.SetToken("user-token")
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	handler.MountRoutes(r)
	return &testEnv{backend: stub, registry: registry, router: r}
}

// catalogFilters loads definitions straight from the backend, without a cache.
type catalogFilters struct {
	client *backend.Client
}

func (c catalogFilters) Filters(ctx context.Context, endpoint string) ([]listing.FilterDefinition, error) {
	var defs []listing.FilterDefinition
	if endpoint != "facilities" {
		return nil, nil
	}
	err := c.client.GetJSON(ctx, "filters/"+endpoint, nil, &defs)
	return defs, err
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

var releaseAttr = regexp.MustCompile(`data-release="[^"?]*\?view=([^"&]+)"`)

// open loads a list page and returns the id of the view it mounted.
func (e *testEnv) open(t *testing.T, target string) string {
	t.Helper()
	res := e.do(t, http.MethodGet, target)
	require.Equal(t, http.StatusOK, res.Code)
	m := releaseAttr.FindStringSubmatch(res.Body.String())
	require.Len(t, m, 2, "page names its view")
	return m[1]
}

func TestListPageRendersFirstPageWithSentinel(t *testing.T) {
	env := newTestEnv(t, 27, "s1")

	res := env.do(t, http.MethodGet, "/facilities")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Equal(t, 20, strings.Count(body, "data-key="))
	m := releaseAttr.FindStringSubmatch(body)
	require.Len(t, m, 2)
	id := m[1]
	assert.Contains(t, body, `data-more="/facilities/more?after=20&amp;gen=1&amp;view=`+id+`"`)
	assert.Contains(t, body, `data-search="/facilities/search?view=`+id+`"`)
	assert.Contains(t, body, `href="/facilities/export.csv?view=`+id+`"`)
	assert.Contains(t, body, "Firm 00")

	calls := env.backend.calls("/facilities")
	require.Len(t, calls, 1)
	assert.Equal(t, "0", calls[0].Get("start"))
	assert.Equal(t, "20", calls[0].Get("length"))
	assert.Equal(t, "legal_name", calls[0].Get("sortField"))
	assert.Equal(t, "US", calls[0].Get("country"), "definition default applied")
	assert.Equal(t, 1, env.registry.Len())
}

func TestMoreAppendsUntilExhausted(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")

	res := env.do(t, http.MethodGet, "/facilities/more?after=20&gen=1&view="+id)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Equal(t, 7, strings.Count(body, "data-key="))
	assert.Contains(t, body, `data-key="2020"`)
	assert.NotContains(t, body, "data-sentinel", "last page drops the sentinel")

	res = env.do(t, http.MethodGet, "/facilities/more?after=27&gen=1&view="+id)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Zero(t, strings.Count(res.Body.String(), "data-key="))
	assert.Len(t, env.backend.calls("/facilities"), 2, "no fetch once the list is exhausted")
}

func TestMoreServesAlreadyLoadedRowsWithoutFetching(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")

	res := env.do(t, http.MethodGet, "/facilities/more?after=15&gen=1&view="+id)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 5, strings.Count(res.Body.String(), "data-key="))
	assert.Len(t, env.backend.calls("/facilities"), 1)
}

func TestMoreRejectsStaleGenerationAndBadInput(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodGet, "/facilities/more?after=20&gen=7&view="+id).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/facilities/more?after=-1&view="+id).Code)
	assert.Len(t, env.backend.calls("/facilities"), 1)
}

func TestMoreWithoutOpenViewIsGone(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	res := env.do(t, http.MethodGet, "/facilities/more?after=0&view=unknown")
	assert.Equal(t, http.StatusGone, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))

	env.open(t, "/facilities")
	assert.Equal(t, http.StatusGone, env.do(t, http.MethodGet, "/facilities/more?after=20").Code, "a request must name its view")
}

func TestSearchBurstAppliesOnlyLastText(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")

	first := make(chan int, 1)
	go func() {
		first <- env.do(t, http.MethodGet, "/facilities/search?q=a&view="+id).Code
	}()
	time.Sleep(20 * time.Millisecond)
	res := env.do(t, http.MethodGet, "/facilities/search?q=ac&view="+id)

	assert.Equal(t, http.StatusNoContent, <-first)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 20, strings.Count(res.Body.String(), "data-key="))

	calls := env.backend.calls("/facilities")
	require.Len(t, calls, 2)
	assert.Equal(t, "ac", calls[1].Get("searchValue"))
	assert.Equal(t, "0", calls[1].Get("start"))
}

func TestFilterAndSortParameters(t *testing.T) {
	env := newTestEnv(t, 5, "s1")
	res := env.do(t, http.MethodGet, "/facilities?f.state=CA&f.country=all&f.bogus=x&sort=fei_number&dir=desc")
	require.Equal(t, http.StatusOK, res.Code)

	calls := env.backend.calls("/facilities")
	require.Len(t, calls, 1)
	q := calls[0]
	assert.Equal(t, "CA", q.Get("state"))
	assert.False(t, q.Has("country"), "explicit all clears the default")
	assert.Equal(t, "x", q.Get("bogus"))
	assert.Equal(t, "fei_number", q.Get("sortField"))
	assert.Equal(t, "desc", q.Get("sortDirection"))
	assert.Contains(t, res.Body.String(), `aria-sort="descending"`)

	env.do(t, http.MethodGet, "/facilities?f.state=TX&sort=address")
	q = env.backend.calls("/facilities")[1]
	assert.False(t, q.Has("state"), "value outside the definition is dropped")
	assert.Equal(t, "legal_name", q.Get("sortField"), "unsortable column falls back to the default")
}

func TestReleaseClosesView(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")
	require.Equal(t, 1, env.registry.Len())

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/facilities/release").Code)
	assert.Equal(t, 1, env.registry.Len(), "release without a view id closes nothing")

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/facilities/release?view="+id).Code)
	assert.Zero(t, env.registry.Len())
	assert.Equal(t, http.StatusGone, env.do(t, http.MethodGet, "/facilities/more?after=20&view="+id).Code)
}

func TestViewsAreScopedBySession(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")

	req := httptest.NewRequest(http.MethodGet, "/facilities/more?after=20&view="+id, nil)
	req.Header.Set(sessionHeader, "s2")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGone, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/facilities/more?after=20&view="+id).Code)
}

func TestPagesOfOneListKeepSeparateViews(t *testing.T) {
	env := newTestEnv(t, 45, "s1")
	asc := env.open(t, "/facilities?sort=fei_number&dir=asc")
	desc := env.open(t, "/facilities?sort=fei_number&dir=desc")
	require.NotEqual(t, asc, desc)
	assert.Equal(t, 2, env.registry.Len())

	res := env.do(t, http.MethodGet, "/facilities/more?after=20&gen=1&view="+asc)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 20, strings.Count(res.Body.String(), "data-key="))

	calls := env.backend.calls("/facilities")
	require.Len(t, calls, 3)
	assert.Equal(t, "20", calls[2].Get("start"))
	assert.Equal(t, "asc", calls[2].Get("sortDirection"), "first page keeps its own sort")

	res = env.do(t, http.MethodGet, "/facilities/search?q=acme&view="+desc)
	require.Equal(t, http.StatusOK, res.Code)
	calls = env.backend.calls("/facilities")
	require.Len(t, calls, 4)
	assert.Equal(t, "acme", calls[3].Get("searchValue"))
	assert.Equal(t, "desc", calls[3].Get("sortDirection"))

	res = env.do(t, http.MethodGet, "/facilities/more?after=40&gen=1&view="+asc)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 5, strings.Count(res.Body.String(), "data-key="), "search on the other page left this one alone")
	calls = env.backend.calls("/facilities")
	require.Len(t, calls, 5)
	assert.False(t, calls[4].Has("searchValue"))
	assert.Equal(t, "asc", calls[4].Get("sortDirection"))
}

func TestLateReleaseFromPreviousPageKeepsNewView(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	old := env.open(t, "/facilities")
	current := env.open(t, "/facilities?f.state=CA")

	// The previous document's pagehide beacon lands after the new page mounted.
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/facilities/release?view="+old).Code)
	assert.Equal(t, 1, env.registry.Len())

	res := env.do(t, http.MethodGet, "/facilities/more?after=20&gen=1&view="+current)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 7, strings.Count(res.Body.String(), "data-key="))
	calls := env.backend.calls("/facilities")
	assert.Equal(t, "CA", calls[len(calls)-1].Get("state"))
}

func TestExportWritesAccumulatedRecords(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	id := env.open(t, "/facilities")

	res := env.do(t, http.MethodGet, "/facilities/export.csv?view="+id)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header().Get("Content-Type"))
	rows, err := csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 21)
	assert.Equal(t, "FEI", rows[0][0])
	assert.Equal(t, "2000", rows[1][0])
}

func TestAPIReturnsOnePage(t *testing.T) {
	env := newTestEnv(t, 27, "s1")

	res := env.do(t, http.MethodGet, "/api/facilities?start=20&length=5")
	require.Equal(t, http.StatusOK, res.Code)
	var page struct {
		Data    []map[string]any `json:"data"`
		Start   int              `json:"start"`
		HasMore bool             `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &page))
	assert.Len(t, page.Data, 5)
	assert.Equal(t, 20, page.Start)
	assert.True(t, page.HasMore)
	assert.Equal(t, "2020", page.Data[0]["fei_number"])
	assert.Zero(t, env.registry.Len(), "api requests do not open views")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/recalls").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/facilities?length=0").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/facilities?start=x").Code)
}

func TestFacilityDetailEmbedsInspections(t *testing.T) {
	env := newTestEnv(t, 0, "s1")

	res := env.do(t, http.MethodGet, "/facilities/1000")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Acme Pharma Inc")
	assert.Equal(t, 2, strings.Count(body, "data-key="))
	assert.Regexp(t, `data-release="/facilities/1000/inspections/release\?view=[0-9a-f-]{36}"`, body)

	calls := env.backend.calls("/inspections")
	require.Len(t, calls, 1)
	assert.Equal(t, "1000", calls[0].Get("fei_number"))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/facilities/999").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/facilities/abc").Code)
}

func TestBackendAuthFailureRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	env.backend.fail(http.StatusUnauthorized)

	res := env.do(t, http.MethodGet, "/facilities")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))
}

func TestBackendErrorRendersMessageRow(t *testing.T) {
	env := newTestEnv(t, 27, "s1")
	env.backend.fail(http.StatusInternalServerError)

	res := env.do(t, http.MethodGet, "/facilities")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, `class="list-error"`)
	assert.NotContains(t, body, "data-sentinel")
}
