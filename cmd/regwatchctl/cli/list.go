package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/regwatch/regwatch/internal/backend"
	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
)

// ErrBadFilter is returned for --filter values not in key=value form.
var ErrBadFilter = errors.New("filter must be key=value")

type criteriaOptions struct {
	search  string
	filters []string
	sort    string
	desc    bool
}

func (c *criteriaOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.search, "search", "q", "", "free-text search")
	cmd.Flags().StringArrayVarP(&c.filters, "filter", "f", nil, "filter as key=value, repeatable; value all clears it")
	cmd.Flags().StringVar(&c.sort, "sort", "", "sort field, defaults to the list's own order")
	cmd.Flags().BoolVar(&c.desc, "desc", false, "sort descending")
}

// criteria validates the flags against kind and builds list criteria.
func (c *criteriaOptions) criteria(kind compliance.Kind) (listing.Criteria, error) {
	values := make(map[string]string, len(c.filters))
	for _, raw := range c.filters {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return listing.Criteria{}, fmt.Errorf("%w: %q", ErrBadFilter, raw)
		}
		if v, set := listing.ParseFilterValue(value).Value(); set {
			values[key] = v
		}
	}

	sort := kind.DefaultSort
	if c.sort != "" {
		if !kind.SortAllowed(c.sort) {
			return listing.Criteria{}, fmt.Errorf("%s cannot be sorted by %q", kind.Slug, c.sort)
		}
		sort = listing.Sort{Field: c.sort, Direction: listing.Asc}
	}
	if c.desc {
		sort.Direction = listing.Desc
	}
	return listing.Criteria{
		Search:  strings.TrimSpace(c.search),
		Filters: listing.NewFilters(values),
		Sort:    sort,
	}, nil
}

type listOptions struct {
	criteriaOptions
	limit  int
	format string
}

func newListCommand(g *globalOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "Print records of one list, loading pages until the limit",
		Example: `  regwatchctl list facilities -q acme -f state=CA --sort inspection_count --desc
  regwatchctl list warning-letters --limit 0 --format csv > letters.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, g, opts, args[0])
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 100, "stop after this many records, 0 loads everything")
	cmd.Flags().StringVarP(&opts.format, "format", "o", "table", "output format: table, csv or json")
	return cmd
}

func runList(cmd *cobra.Command, g *globalOptions, opts *listOptions, slug string) error {
	kind, err := compliance.Lookup(slug)
	if err != nil {
		return err
	}
	criteria, err := opts.criteria(kind)
	if err != nil {
		return err
	}
	write, err := writerFor(opts.format)
	if err != nil {
		return err
	}
	client, logger, err := g.client(cmd)
	if err != nil {
		return err
	}

	ctrl := listing.NewController(
		backend.NewFetcher[compliance.Record](client, kind.Endpoint, kind.Decode),
		compliance.RecordKey,
		listing.Options{PageSize: g.pageSize, Logger: logger},
	)
	defer ctrl.Close()

	records, more, err := collect(cmd.Context(), ctrl, criteria, opts.limit)
	if err != nil {
		return err
	}
	if err := write(cmd.OutOrStdout(), kind, records); err != nil {
		return err
	}
	if opts.format == "table" {
		suffix := ""
		if more {
			suffix = ", more available"
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s records%s\n", compliance.FormatCount(len(records)), suffix)
	}
	return nil
}

// collect resets ctrl to criteria and keeps asking for pages until the list is exhausted
// or limit records are loaded. It reports whether more records remain.
func collect(ctx context.Context, ctrl *listing.Controller[compliance.Record], criteria listing.Criteria, limit int) ([]compliance.Record, bool, error) {
	ctrl.Reset(criteria)
	for {
		if err := ctrl.Wait(ctx); err != nil {
			return nil, false, err
		}
		state := ctrl.State()
		if state.Err != nil {
			return nil, false, state.Err
		}
		if limit > 0 && len(state.Records) >= limit {
			return state.Records[:limit], state.HasMore || len(state.Records) > limit, nil
		}
		if !state.HasMore || !ctrl.LoadMore() {
			return state.Records, state.HasMore, nil
		}
	}
}

type recordWriter func(w io.Writer, kind compliance.Kind, records []compliance.Record) error

func writerFor(format string) (recordWriter, error) {
	switch format {
	case "table":
		return writeTable, nil
	case "csv":
		return writeCSV, nil
	case "json":
		return writeJSON, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func writeTable(w io.Writer, kind compliance.Kind, records []compliance.Record) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(kind.Header()...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, rec := range records {
		t.Row(rec.Cells()...)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func writeCSV(w io.Writer, kind compliance.Kind, records []compliance.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(kind.Header()); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(rec.Cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, _ compliance.Kind, records []compliance.Record) error {
	if records == nil {
		records = []compliance.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
