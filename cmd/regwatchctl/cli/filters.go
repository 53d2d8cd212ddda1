package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/regwatch/regwatch/internal/backend"
	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/platform/cache"
)

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the record kinds and their sortable fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tTITLE\tSEARCH\tSORT FIELDS")
			for _, k := range compliance.Kinds() {
				var fields []string
				for _, c := range k.Columns {
					if c.Sortable() {
						fields = append(fields, c.Field)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.Slug, k.Title, k.SearchHint, strings.Join(fields, ","))
			}
			return tw.Flush()
		},
	}
}

func newFiltersCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "filters <kind>",
		Short: "Show the filters a list accepts and their allowed values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := compliance.Lookup(args[0])
			if err != nil {
				return err
			}
			client, logger, err := g.client(cmd)
			if err != nil {
				return err
			}
			// No Redis here: a nil cache client loads on every call.
			catalog := backend.NewCatalog(client, cache.NewVersioned(nil, "catalog", 0), logger)
			defs, err := catalog.Filters(cmd.Context(), kind.Endpoint)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tDEFAULT\tVALUES")
			for _, d := range defs {
				def := d.DefaultValue
				if def == "" {
					def = "all"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Key, d.Label, def, strings.Join(d.AllowedValues, ","))
			}
			return tw.Flush()
		},
	}
}
