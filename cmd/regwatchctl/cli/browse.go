package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/regwatch/regwatch/internal/backend"
	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/tui"
)

func newBrowseCommand(g *globalOptions) *cobra.Command {
	opts := &criteriaOptions{}
	cmd := &cobra.Command{
		Use:   "browse <kind>",
		Short: "Scroll through a list interactively, loading pages as the cursor reaches the end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := compliance.Lookup(args[0])
			if err != nil {
				return err
			}
			criteria, err := opts.criteria(kind)
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
			view := listing.NewView(ctrl, listing.DefaultSearchDelay)
			defer view.Close()

			program := tea.NewProgram(
				tui.New(kind, view, criteria),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			_, err = program.Run()
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}
