package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ArticlesConsolidator/internal/app"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(application *app.Application) error {
				sources := application.Sources()
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No feeds configured")
					return nil
				}
				rows := make([][]string, 0, len(sources))
				for _, s := range sources {
					rows = append(rows, []string{s.ID, s.Name, s.FeedURL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "URL"}, rows, nil))
				return nil
			})
		},
	}
}
