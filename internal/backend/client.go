// Package backend talks to the PostgREST service that owns the compliance data.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/shared"
)

const (
	maxBodyBytes  = 8 << 20
	maxMessageLen = 240
)

// Client issues authenticated GET requests against the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      shared.SessionContext
	logger     *slog.Logger
}

// NewClient constructs a client for baseURL. A non-positive timeout defaults to 30s.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url %q must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    parsed.String(),
		httpClient: &http.Client{Timeout: timeout},
		creds:      shared.StaticToken(""),
		logger:     logger,
	}, nil
}

// WithCredentials returns a copy of the client that authenticates as creds.
func (c *Client) WithCredentials(creds shared.SessionContext) *Client {
	clone := *c
	if creds == nil {
		creds = shared.StaticToken("")
	}
	clone.creds = creds
	return &clone
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the backend answers at its root.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Get(ctx, "", nil)
	return err
}

// Get fetches endpoint with params and returns the raw body of a 2xx response. Other
// statuses become *listing.FetchError.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if token, ok := c.creds.CurrentToken(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: get %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("backend: read %s: %w", endpoint, err)
	}
	c.logger.Debug("backend request",
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &listing.FetchError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return body, nil
}

// GetJSON fetches endpoint and decodes the body into dest. Decode failures become
// *listing.DecodeError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, dest any) error {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &listing.DecodeError{Err: err}
	}
	return nil
}

// errorMessage extracts PostgREST's "message" field, falling back to the trimmed body.
func errorMessage(status int, body []byte) string {
	var problem struct {
		Message string `json:"message"`
		Detail  string `json:"details"`
	}
	if json.Unmarshal(body, &problem) == nil && problem.Message != "" {
		return truncate(problem.Message)
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "<") {
		return truncate(text)
	}
	return http.StatusText(status)
}

// truncate collapses whitespace and cuts s to at most maxMessageLen bytes, never inside
// a multi-byte rune.
func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Reserved query parameters; filters may not shadow them.
const (
	paramStart     = "start"
	paramLength    = "length"
	paramSearch    = "searchValue"
	paramSortField = "sortField"
	paramSortDir   = "sortDirection"
)

var reserved = map[string]bool{
	paramStart: true, paramLength: true, paramSearch: true, paramSortField: true, paramSortDir: true,
}

// QueryParams encodes a list query in the backend's list contract.
func QueryParams(q listing.Query) url.Values {
	params := url.Values{}
	params.Set(paramStart, strconv.Itoa(q.Offset))
	params.Set(paramLength, strconv.Itoa(q.PageSize))
	params.Set(paramSearch, q.Search)
	for _, key := range q.Filters.Keys() {
		if reserved[key] {
			continue
		}
		value, _ := q.Filters.Get(key)
		params.Set(key, value)
	}
	if !q.Sort.IsZero() {
		params.Set(paramSortField, q.Sort.Field)
		dir := q.Sort.Direction
		if dir == "" {
			dir = listing.Asc
		}
		params.Set(paramSortDir, string(dir))
	}
	return params
}
