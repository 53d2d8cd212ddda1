// Package compliancehttp serves the incremental list pages: every browser page owns one
// server-side list view that the page's scroll sentinel and search box drive.
package compliancehttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/regwatch/regwatch/internal/backend"
	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/platform/httpx"
	"github.com/regwatch/regwatch/internal/shared"
	"github.com/regwatch/regwatch/internal/view"
)

var errNoSession = errors.New("compliance: request has no session")

// FilterSource supplies the filter dropdowns of a list endpoint.
type FilterSource interface {
	Filters(ctx context.Context, endpoint string) ([]listing.FilterDefinition, error)
}

// Options tunes the list views the handler creates.
type Options struct {
	PageSize      int
	MaxRecords    int
	SearchDelay   time.Duration
	FetchAttempts int
	RetryDelay    time.Duration
	// WaitTimeout bounds how long a request waits for a page to arrive.
	WaitTimeout time.Duration
}

// Handler coordinates HTTP requests for the list pages.
type Handler struct {
	logger    *slog.Logger
	client    *backend.Client
	filters   FilterSource
	templates *view.Engine
	csrf      *shared.CSRFManager
	registry  *Registry
	recorder  listing.Recorder
	opts      Options
	csvPool   sync.Pool
}

// NewHandler constructs the list handler.
func NewHandler(logger *slog.Logger, client *backend.Client, filters FilterSource, templates *view.Engine, csrf *shared.CSRFManager, registry *Registry, recorder listing.Recorder, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = listing.DefaultPageSize
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 15 * time.Second
	}
	if opts.FetchAttempts <= 0 {
		opts.FetchAttempts = 1
	}
	h := &Handler{
		logger:    logger,
		client:    client,
		filters:   filters,
		templates: templates,
		csrf:      csrf,
		registry:  registry,
		recorder:  recorder,
		opts:      opts,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// listRef identifies one mountable list: which kind it shows, where its routes live and
// which filters are pinned.
type listRef struct {
	kind  compliance.Kind
	name  string
	base  string
	fixed map[string]string
}

type refFunc func(r *http.Request) (listRef, error)

func kindRef(kind compliance.Kind) refFunc {
	ref := listRef{kind: kind, name: kind.Slug, base: "/" + kind.Slug}
	return func(*http.Request) (listRef, error) { return ref, nil }
}

func facilityInspectionsRef(r *http.Request) (listRef, error) {
	fei := strings.TrimSpace(chi.URLParam(r, "fei"))
	if !validFEI(fei) {
		return listRef{}, httpx.ErrNotFound
	}
	kind, err := compliance.Lookup(compliance.SlugInspections)
	if err != nil {
		return listRef{}, err
	}
	return listRef{
		kind:  kind,
		name:  "facility:" + fei + ":inspections",
		base:  "/facilities/" + url.PathEscape(fei) + "/inspections",
		fixed: map[string]string{"fei_number": fei},
	}, nil
}

func validFEI(fei string) bool {
	if fei == "" || len(fei) > 20 {
		return false
	}
	for _, r := range fei {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func credentials(sess *shared.Session) shared.SessionContext {
	token, _ := sess.CurrentToken()
	return shared.StaticToken(token)
}

func (h *Handler) fetcher(ref listRef, creds shared.SessionContext) listing.Fetcher[compliance.Record] {
	client := h.client.WithCredentials(creds)
	f := backend.NewFetcher[compliance.Record](client, ref.kind.Endpoint, ref.kind.Decode)
	return listing.Retrying(withFixedFilters(f, ref.fixed), h.opts.FetchAttempts, h.opts.RetryDelay)
}

func (h *Handler) newView(ref listRef, creds shared.SessionContext) *ListView {
	ctrl := listing.NewController(h.fetcher(ref, creds), compliance.RecordKey, listing.Options{
		Name:       ref.kind.Slug,
		PageSize:   h.opts.PageSize,
		MaxRecords: h.opts.MaxRecords,
		Logger:     h.logger,
		Recorder:   h.recorder,
	})
	return listing.NewView(ctrl, h.opts.SearchDelay)
}

func (h *Handler) filterDefs(ctx context.Context, ref listRef) []listing.FilterDefinition {
	if h.filters == nil || len(ref.fixed) > 0 {
		return nil
	}
	defs, err := h.filters.Filters(ctx, ref.kind.Endpoint)
	if err != nil {
		h.logger.Warn("load filter definitions", slog.String("list", ref.kind.Slug), slog.Any("error", err))
		return nil
	}
	return defs
}

// mount opens a fresh view of ref for one page and waits for its first page.
func (h *Handler) mount(ctx context.Context, r *http.Request, ref listRef) (ListPage, listing.State[compliance.Record], error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return ListPage{}, listing.State[compliance.Record]{}, errNoSession
	}
	defs := h.filterDefs(ctx, ref)
	criteria := parseCriteria(ref.kind, r.URL.Query(), defs)

	v := h.newView(ref, credentials(sess))
	id := h.registry.Put(sess.ID, ref.name, v)
	v.Mount(criteria)

	waitCtx, cancel := context.WithTimeout(ctx, h.opts.WaitTimeout)
	defer cancel()
	if err := v.Controller().Wait(waitCtx); err != nil {
		h.registry.Release(sess.ID, ref.name, id)
		return ListPage{}, listing.State[compliance.Record]{}, err
	}
	state := v.Controller().State()
	page := ListPage{
		Kind:     ref.kind,
		Base:     ref.base,
		View:     id,
		Search:   criteria.Search,
		Sort:     criteria.Sort,
		Filters:  filterControls(defs, criteria.Filters),
		Columns:  columnHeaders(ref.base, ref.kind, criteria),
		Fragment: fragment(ref.base, id, ref.kind, state, 0),
	}
	return page, state, nil
}

func (h *Handler) list(resolve refFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := resolve(r)
		if err != nil {
			h.renderError(w, r, http.StatusNotFound, "Page not found")
			return
		}
		page, state, err := h.mount(r.Context(), r, ref)
		if err != nil {
			h.handleWaitError(w, r, err)
			return
		}
		if isAuthError(state.Err) {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		if err := h.templates.Render(w, "pages/list.html", view.Page(r, h.csrf, ref.kind.Title, page)); err != nil {
			h.logError("render list", err)
		}
	}
}

// more answers the scroll sentinel: it asks the view for the next page, waits for it and
// renders the rows after the client's count.
func (h *Handler) more(resolve refFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, id, v, ok := h.openView(w, r, resolve)
		if !ok {
			return
		}
		after, err := strconv.Atoi(r.URL.Query().Get(paramAfter))
		if err != nil || after < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "after must be a non-negative integer")
			return
		}
		gen, hasGen := parseGeneration(r.URL.Query().Get(paramGen))

		ctrl := v.Controller()
		state := ctrl.State()
		if len(state.Records) <= after && (!hasGen || gen == state.Generation) {
			v.Reveal(true)
			defer v.Reveal(false)
			waitCtx, cancel := context.WithTimeout(r.Context(), h.opts.WaitTimeout)
			defer cancel()
			if err := ctrl.Wait(waitCtx); err != nil {
				h.handleWaitError(w, r, err)
				return
			}
			state = ctrl.State()
		}
		if hasGen && gen != state.Generation {
			// The list was reset since the client rendered; its rows are stale.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if len(state.Records) <= after && state.Err == nil && state.HasMore {
			// Nothing new yet, e.g. a page of duplicates; the sentinel stays.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if isAuthError(state.Err) {
			httpx.RespondError(w, state.Err)
			return
		}
		h.renderRows(w, fragment(ref.base, id, ref.kind, state, after))
	}
}

// search feeds the text through the view's debouncer. Requests superseded by newer
// input get 204; the winning request renders the new first page.
func (h *Handler) search(resolve refFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, id, v, ok := h.openView(w, r, resolve)
		if !ok {
			return
		}
		text := strings.TrimSpace(r.URL.Query().Get(paramSearch))
		if len([]rune(text)) > maxSearchLen {
			text = string([]rune(text)[:maxSearchLen])
		}
		select {
		case applied := <-v.Search(text):
			if !applied {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		case <-r.Context().Done():
			return
		}

		waitCtx, cancel := context.WithTimeout(r.Context(), h.opts.WaitTimeout)
		defer cancel()
		if err := v.Controller().Wait(waitCtx); err != nil {
			h.handleWaitError(w, r, err)
			return
		}
		state := v.Controller().State()
		if isAuthError(state.Err) {
			httpx.RespondError(w, state.Err)
			return
		}
		h.renderRows(w, fragment(ref.base, id, ref.kind, state, 0))
	}
}

// release closes the view the leaving page owns. A release naming a view that is already
// gone, or another page's view, changes nothing.
func (h *Handler) release(resolve refFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := resolve(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			h.registry.Release(sess.ID, ref.name, r.URL.Query().Get(paramView))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// export writes the records the view has accumulated so far as CSV.
func (h *Handler) export(resolve refFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, _, v, ok := h.openView(w, r, resolve)
		if !ok {
			return
		}
		state := v.Controller().State()

		buf := h.csvPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer func() {
			buf.Reset()
			h.csvPool.Put(buf)
		}()
		if err := writeRecordsCSV(buf, ref.kind, state.Records); err != nil {
			h.logError("write csv", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+ref.kind.Slug+`.csv"`)
		if _, err := w.Write(buf.Bytes()); err != nil {
			h.logError("stream csv", err)
		}
	}
}

type apiPage struct {
	Data     []compliance.Record `json:"data"`
	Start    int                 `json:"start"`
	Length   int                 `json:"length"`
	Returned int                 `json:"returned"`
	HasMore  bool                `json:"has_more"`
}

// handleAPI fetches one page straight from the backend, without a view.
func (h *Handler) handleAPI(w http.ResponseWriter, r *http.Request) {
	kind, err := compliance.Lookup(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	query := r.URL.Query()
	start, err := intParam(query, paramStart, 0)
	if err != nil || start < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start must be a non-negative integer")
		return
	}
	length, err := intParam(query, paramLength, h.opts.PageSize)
	if err != nil || length <= 0 || length > maxAPILength {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "length must be between 1 and "+strconv.Itoa(maxAPILength))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.WaitTimeout)
	defer cancel()
	ref := listRef{kind: kind, name: kind.Slug, base: "/" + kind.Slug}
	criteria := parseCriteria(kind, query, h.filterDefs(ctx, ref))
	creds := shared.CredentialsFromContext(ctx)

	page, err := h.fetcher(ref, creds).Fetch(ctx, listing.Query{Criteria: criteria, Offset: start, PageSize: length})
	if err != nil {
		h.logger.Warn("api fetch", slog.String("list", kind.Slug), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	records := page.Records
	if records == nil {
		records = []compliance.Record{}
	}
	httpx.JSON(w, http.StatusOK, apiPage{
		Data:     records,
		Start:    start,
		Length:   length,
		Returned: page.ReturnedCount,
		HasMore:  page.HasMore(length),
	})
}

func (h *Handler) handleFacility(w http.ResponseWriter, r *http.Request) {
	ref, err := facilityInspectionsRef(r)
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "No facility with that FEI number")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.handleWaitError(w, r, errNoSession)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.WaitTimeout)
	defer cancel()
	fei := ref.fixed["fei_number"]
	facility, err := backend.FetchFacility(ctx, h.client.WithCredentials(credentials(sess)), fei)
	switch {
	case errors.Is(err, backend.ErrFacilityNotFound):
		h.renderError(w, r, http.StatusNotFound, "No facility with FEI number "+fei)
		return
	case isAuthError(err):
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	case err != nil:
		h.logError("fetch facility", err)
		h.renderError(w, r, http.StatusBadGateway, listing.UserMessage(err))
		return
	}

	inspections, _, err := h.mount(r.Context(), r, ref)
	if err != nil {
		h.handleWaitError(w, r, err)
		return
	}
	page := FacilityPage{
		Facility:    facility,
		Name:        compliance.DisplayName(facility.Name),
		Location:    facility.Location(),
		Inspections: inspections,
	}
	if err := h.templates.Render(w, "pages/facility.html", view.Page(r, h.csrf, page.Name, page)); err != nil {
		h.logError("render facility", err)
	}
}

// openView resolves ref and the view named by the request's view parameter, answering
// the request itself when either is missing. A missing view means the page outlived it;
// 410 tells the page to reload.
func (h *Handler) openView(w http.ResponseWriter, r *http.Request, resolve refFunc) (listRef, string, *ListView, bool) {
	ref, err := resolve(r)
	if err != nil {
		httpx.RespondError(w, err)
		return listRef{}, "", nil, false
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusGone, "Gone", "list is no longer open")
		return listRef{}, "", nil, false
	}
	id := r.URL.Query().Get(paramView)
	v, ok := h.registry.Get(sess.ID, ref.name, id)
	if !ok {
		httpx.Problem(w, http.StatusGone, "Gone", "list is no longer open")
		return listRef{}, "", nil, false
	}
	return ref, id, v, true
}

func (h *Handler) renderRows(w http.ResponseWriter, f RowsFragment) {
	if err := h.templates.RenderPartial(w, "partials/rows.html", f); err != nil {
		h.logError("render rows", err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	page := view.Page(r, h.csrf, http.StatusText(status), view.ErrorPage{Status: status, Message: message})
	if err := h.templates.RenderStatus(w, status, "pages/error.html", page); err != nil {
		h.logError("render error page", err)
	}
}

func (h *Handler) handleWaitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.renderError(w, r, http.StatusGatewayTimeout, "The data service is taking too long to respond. Please try again.")
	case errors.Is(err, context.Canceled):
		// client went away
	case errors.Is(err, listing.ErrClosed):
		httpx.Problem(w, http.StatusGone, "Gone", "list is no longer open")
	default:
		h.logError("list request", err)
		h.renderError(w, r, http.StatusInternalServerError, "Something went wrong")
	}
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

func isAuthError(err error) bool {
	var fetchErr *listing.FetchError
	return errors.As(err, &fetchErr) &&
		(fetchErr.StatusCode == http.StatusUnauthorized || fetchErr.StatusCode == http.StatusForbidden)
}

func parseGeneration(raw string) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

func intParam(values url.Values, key string, def int) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeRecordsCSV(buf *bytes.Buffer, kind compliance.Kind, records []compliance.Record) error {
	writer := csv.NewWriter(buf)
	if err := writer.Write(kind.Header()); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(rec.Cells()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
