package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ArticlesConsolidator/internal/app"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch all configured feeds once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(application *app.Application) error {
				report, err := application.Ingest(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d articles, %d new\n", report.Fetched, report.New)
				if report.FeedErrors != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "some feeds failed: %v\n", report.FeedErrors)
				}
				return nil
			})
		},
	}
}
