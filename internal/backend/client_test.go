package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/platform/cache"
	"github.com/regwatch/regwatch/internal/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, time.Second, nil)
	require.NoError(t, err)
	return client
}

func TestQueryParamsEncodeListContract(t *testing.T) {
	q := listing.Query{
		Criteria: listing.Criteria{
			Search:  "aci",
			Filters: listing.NewFilters(map[string]string{"state": "CA", "start": "99"}),
			Sort:    listing.Sort{Field: "legal_name"},
		},
		Offset:   40,
		PageSize: 20,
	}
	got := QueryParams(q)
	want := url.Values{
		"start":         {"40"},
		"length":        {"20"},
		"searchValue":   {"aci"},
		"state":         {"CA"},
		"sortField":     {"legal_name"},
		"sortDirection": {"asc"},
	}
	assert.Equal(t, want, got)

	plain := QueryParams(listing.Query{PageSize: 20})
	assert.Equal(t, "", plain.Get("searchValue"))
	assert.False(t, plain.Has("sortField"))
}

func TestFetcherSendsTokenAndDecodes(t *testing.T) {
	var seen *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"letter_id":"WL-1","company_name":"ACME"},{"letter_id":"WL-2","company_name":"BETA"}]`))
	})
	kind, err := compliance.Lookup(compliance.SlugWarningLetters)
	require.NoError(t, err)

	fetcher := NewFetcher(client.WithCredentials(shared.StaticToken("tok")), kind.Endpoint, kind.Decode)
	page, err := fetcher.Fetch(context.Background(), listing.Query{Criteria: listing.Criteria{Search: "ac"}, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, "/warning_letters", seen.URL.Path)
	assert.Equal(t, "Bearer tok", seen.Header.Get("Authorization"))
	assert.Equal(t, "application/json", seen.Header.Get("Accept"))
	assert.NotEmpty(t, seen.Header.Get("X-Request-ID"))
	assert.Equal(t, "ac", seen.URL.Query().Get("searchValue"))
	assert.Equal(t, 2, page.ReturnedCount)
	assert.True(t, page.HasMore(2))
}

func TestAnonymousRequestsOmitAuthorization(t *testing.T) {
	var auth atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := client.Get(context.Background(), "facilities", nil)
	require.NoError(t, err)
	assert.Equal(t, "", auth.Load())
}

func TestFetcherErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name: "postgrest error", status: http.StatusBadRequest,
			body: `{"code":"42703","message":"column facilities.bogus does not exist"}`,
			check: func(t *testing.T, err error) {
				var fe *listing.FetchError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, http.StatusBadRequest, fe.StatusCode)
				assert.Equal(t, "column facilities.bogus does not exist", fe.Message)
			},
		},
		{
			name: "html gateway page", status: http.StatusBadGateway, body: "<html>bad gateway</html>",
			check: func(t *testing.T, err error) {
				var fe *listing.FetchError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "Bad Gateway", fe.Message)
			},
		},
		{
			name: "not json", status: http.StatusOK, body: `{"oops":`,
			check: func(t *testing.T, err error) {
				var de *listing.DecodeError
				assert.ErrorAs(t, err, &de)
			},
		},
		{
			name: "fails validation", status: http.StatusOK, body: `[{"fei_number":"1"}]`,
			check: func(t *testing.T, err error) {
				var de *listing.DecodeError
				assert.ErrorAs(t, err, &de)
			},
		},
	}
	kind, err := compliance.Lookup(compliance.SlugFacilities)
	require.NoError(t, err)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := NewFetcher(client, kind.Endpoint, kind.Decode).Fetch(context.Background(), listing.Query{PageSize: 20})
			tc.check(t, err)
		})
	}
}

func TestErrorMessageCutsOnRuneBoundary(t *testing.T) {
	// One ASCII byte shifts every two-byte rune so the byte limit falls mid-rune.
	long := "x" + strings.Repeat("é", maxMessageLen)
	got := errorMessage(http.StatusBadRequest, []byte(`{"message":"`+long+`"}`))

	require.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
	body := strings.TrimSuffix(got, "…")
	assert.LessOrEqual(t, len(body), maxMessageLen)
	assert.Equal(t, maxMessageLen-1, len(body), "cut backs off to the last whole rune")
	assert.True(t, strings.HasPrefix(long, body))

	assert.Equal(t, "short message", truncate("  short \n message "))
}

func TestFetcherTrimsOversizedPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"},{"id":"3"}]`))
	})
	decode := func(raw []byte) ([]string, error) { return []string{"1", "2", "3"}, nil }
	page, err := NewFetcher(client, "x", decode).Fetch(context.Background(), listing.Query{PageSize: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, page.Records)
	assert.Equal(t, 4, page.RequestedOffset)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", time.Second, nil)
	assert.Error(t, err)
	_, err = NewClient("://", time.Second, nil)
	assert.Error(t, err)
}

func TestCatalogCachesFilterDefinitions(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/filters/inspections", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"key":"classification","label":"Classification","values":["all","NAI","VAI","OAI"],"default":"all"},
			{"key":"","values":["x"]}
		]`))
	})
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	catalog := NewCatalog(client, cache.NewVersioned(rdb, "catalog", time.Minute), nil)

	for i := 0; i < 3; i++ {
		defs, err := catalog.Filters(context.Background(), "inspections")
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, []string{"NAI", "VAI", "OAI"}, defs[0].AllowedValues)
		assert.Equal(t, "", defs[0].DefaultValue)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := catalog.Cache().Bump(context.Background())
	require.NoError(t, err)
	_, err = catalog.Filters(context.Background(), "inspections")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCatalogDashboardAndFacility(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dashboard/summary":
			_, _ = w.Write([]byte(`{"facilities":"1200","inspections":300,"oai_inspections":30}`))
		case "/dashboard/inspections_by_year":
			_, _ = w.Write([]byte(`[{"fiscal_year":2023,"nai":5,"vai":3,"oai":1}]`))
		case "/dashboard/citations_by_system":
			_, _ = w.Write([]byte(`[{"system_code":"QS","current":10,"previous":7}]`))
		case "/facilities":
			if r.URL.Query().Get("fei_number") == "eq.404" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"fei_number":3001,"legal_name":"ACME"}]`))
		default:
			http.NotFound(w, r)
		}
	})
	catalog := NewCatalog(client, cache.NewVersioned(nil, "catalog", time.Minute), nil)
	ctx := context.Background()

	summary, err := catalog.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, compliance.FlexInt(1200), summary.Facilities)

	years, err := catalog.InspectionsByYear(ctx)
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Equal(t, 9, years[0].Total())

	cites, err := catalog.CitationsBySystem(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Quality System", cites[0].Name())

	facility, err := FetchFacility(ctx, client, "3001")
	require.NoError(t, err)
	assert.Equal(t, "3001", facility.Key())

	_, err = FetchFacility(ctx, client, "404")
	assert.ErrorIs(t, err, ErrFacilityNotFound)

	assert.NoError(t, catalog.Invalidate(ctx))
	_, err = catalog.Filters(ctx, "missing")
	var fe *listing.FetchError
	assert.ErrorAs(t, err, &fe)
}
