package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/dashboard/svg"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/shared"
	"github.com/regwatch/regwatch/internal/view"
)

const requestTimeout = 5 * time.Second

var errRendererMissing = errors.New("dashboard: svg renderer missing")

// Handler coordinates HTTP requests for the dashboard pages.
type Handler struct {
	logger    *slog.Logger
	service   Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	line      LineRenderer
	bar       BarRenderer
	csvPool   sync.Pool
}

// NewHandler constructs the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service Service, templates *view.Engine, csrf *shared.CSRFManager, line LineRenderer, bar BarRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		line:      line,
		bar:       bar,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

type dashboardData struct {
	summary   compliance.Summary
	years     []compliance.YearCount
	citations []compliance.SystemCitations
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.loadDashboardData(ctx)
	if err != nil {
		h.handleLoadError(w, r, err)
		return
	}
	vm, err := h.buildViewModel(data)
	if err != nil {
		h.handleServerError(w, "render charts", err)
		return
	}
	if err := h.templates.Render(w, "pages/dashboard.html", view.Page(r, h.csrf, "Dashboard", vm)); err != nil {
		h.logError("render dashboard", err)
	}
}

func (h *Handler) handleSystems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	citations, err := h.service.CitationsBySystem(ctx)
	if err != nil {
		// The taxonomy is static; render it without counts.
		h.logError("load citations", err)
		citations = nil
	}
	rows := systemRows(citations)
	if err := h.templates.Render(w, "pages/systems.html", view.Page(r, h.csrf, "Six Systems", rows)); err != nil {
		h.logError("render systems", err)
	}
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.loadDashboardData(ctx)
	if err != nil {
		h.handleLoadError(w, r, err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := WriteSummaryCSV(buf, data.summary); err != nil {
		h.handleServerError(w, "write summary csv", err)
		return
	}
	buf.WriteString("\n")
	if err := WriteYearsCSV(buf, data.years); err != nil {
		h.handleServerError(w, "write years csv", err)
		return
	}
	buf.WriteString("\n")
	if err := WriteSystemsCSV(buf, systemRows(data.citations)); err != nil {
		h.handleServerError(w, "write systems csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="regwatch-dashboard.csv"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) loadDashboardData(ctx context.Context) (dashboardData, error) {
	var data dashboardData
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := h.service.Summary(ctx)
		if err != nil {
			return err
		}
		data.summary = summary
		return nil
	})

	g.Go(func() error {
		years, err := h.service.InspectionsByYear(ctx)
		if err != nil {
			return err
		}
		data.years = years
		return nil
	})

	g.Go(func() error {
		citations, err := h.service.CitationsBySystem(ctx)
		if err != nil {
			return err
		}
		data.citations = citations
		return nil
	})

	if err := g.Wait(); err != nil {
		return dashboardData{}, err
	}
	return data, nil
}

func (h *Handler) buildViewModel(data dashboardData) (ViewModel, error) {
	if h.line == nil || h.bar == nil {
		return ViewModel{}, errRendererMissing
	}
	s := data.summary
	vm := ViewModel{
		Cards: []Card{
			{Label: "Facilities", Value: compliance.FormatCount(s.Facilities.Int()), Href: "/facilities"},
			{Label: "Inspections", Value: compliance.FormatCount(s.Inspections.Int()), Href: "/inspections"},
			{Label: "OAI share", Value: fmt.Sprintf("%.1f%%", s.OAIShare()*100), Href: "/inspections?f.classification=OAI"},
			{Label: "Form 483s", Value: compliance.FormatCount(s.Form483s.Int()), Href: "/form483s"},
			{Label: "Warning letters", Value: compliance.FormatCount(s.WarningLetters.Int()), Href: "/warning-letters"},
			{Label: "Investigators", Value: compliance.FormatCount(s.Investigators.Int()), Href: "/investigators"},
		},
		RefreshedAt: s.RefreshedAt.String(),
		Years:       sortedYears(data.years),
		Systems:     systemRows(data.citations),
	}

	labels := make([]string, 0, len(vm.Years))
	nai := make([]float64, 0, len(vm.Years))
	vai := make([]float64, 0, len(vm.Years))
	oai := make([]float64, 0, len(vm.Years))
	for _, y := range vm.Years {
		labels = append(labels, "FY"+strconv.Itoa(y.FiscalYear.Int()))
		nai = append(nai, float64(y.NAI))
		vai = append(vai, float64(y.VAI))
		oai = append(oai, float64(y.OAI))
	}
	if len(labels) > 0 {
		line, err := h.line.Line(svg.DefaultWidth, svg.DefaultHeight, []svg.Series{
			{Name: "NAI", Values: nai, Color: "#059669"},
			{Name: "VAI", Values: vai, Color: "#f59e0b"},
			{Name: "OAI", Values: oai, Color: "#dc2626"},
		}, labels, svg.LineOpts{
			Title:       "Inspections per fiscal year",
			Description: "Inspections ending in each fiscal year by final classification",
			ShowDots:    true,
		})
		if err != nil {
			return ViewModel{}, err
		}
		vm.InspectionsSVG = line
	}

	if len(vm.Systems) > 0 {
		sysLabels := make([]string, len(vm.Systems))
		current := make([]float64, len(vm.Systems))
		previous := make([]float64, len(vm.Systems))
		for i, row := range vm.Systems {
			sysLabels[i] = row.Code
			current[i] = float64(row.Current)
			previous[i] = float64(row.Previous)
		}
		bars, err := h.bar.Bars(svg.DefaultWidth, svg.DefaultHeight, []svg.Series{
			{Name: "Current FY", Values: current},
			{Name: "Previous FY", Values: previous},
		}, sysLabels, svg.BarOpts{
			Title:       "Form 483 citations by system",
			Description: "Observations cited per quality system, current against previous fiscal year",
		})
		if err != nil {
			return ViewModel{}, err
		}
		vm.CitationsSVG = bars
	}
	return vm, nil
}

// systemRows lists every system in taxonomy order, filling in counts where present.
func systemRows(citations []compliance.SystemCitations) []SystemRow {
	byCode := make(map[string]compliance.SystemCitations, len(citations))
	for _, c := range citations {
		byCode[c.Code] = c
	}
	systems := compliance.Systems()
	rows := make([]SystemRow, 0, len(systems))
	for _, sys := range systems {
		c := byCode[sys.Code]
		rows = append(rows, SystemRow{
			Code:       sys.Code,
			Name:       sys.Name,
			Subsystems: sys.Subsystems,
			Current:    c.Current.Int(),
			Previous:   c.Previous.Int(),
			Change:     c.Current.Int() - c.Previous.Int(),
		})
	}
	return rows
}

func sortedYears(years []compliance.YearCount) []compliance.YearCount {
	out := make([]compliance.YearCount, len(years))
	copy(out, years)
	sort.Slice(out, func(i, j int) bool { return out[i].FiscalYear < out[j].FiscalYear })
	return out
}

func (h *Handler) handleLoadError(w http.ResponseWriter, r *http.Request, err error) {
	var fetchErr *listing.FetchError
	if errors.As(err, &fetchErr) && (fetchErr.StatusCode == http.StatusUnauthorized || fetchErr.StatusCode == http.StatusForbidden) {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	h.logError("load dashboard", err)
	page := view.Page(r, h.csrf, "Dashboard unavailable", view.ErrorPage{Status: http.StatusBadGateway, Message: listing.UserMessage(err)})
	if err := h.templates.RenderStatus(w, http.StatusBadGateway, "pages/error.html", page); err != nil {
		h.logError("render error page", err)
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

// HandleDashboardForTest exposes the dashboard handler for tests.
func (h *Handler) HandleDashboardForTest(w http.ResponseWriter, r *http.Request) {
	h.handleDashboard(w, r)
}

// HandleSystemsForTest exposes the systems handler for tests.
func (h *Handler) HandleSystemsForTest(w http.ResponseWriter, r *http.Request) { h.handleSystems(w, r) }

// HandleCSVForTest exposes the CSV export handler for tests.
func (h *Handler) HandleCSVForTest(w http.ResponseWriter, r *http.Request) { h.handleCSV(w, r) }
