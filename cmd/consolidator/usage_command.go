package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ArticlesConsolidator/internal/app"
)

func newUsageCommand(ctx *commandContext) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show API token usage per model for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			if month != "" {
				parsed, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("invalid --month %q, expected YYYY-MM", month)
				}
				at = parsed
			}

			return ctx.withApp(func(application *app.Application) error {
				stats, err := application.MonthlyUsage(cmd.Context(), at.Year(), at.Month())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintf(out, "No API calls recorded in %s\n", at.Format("January 2006"))
					return nil
				}

				rows := make([][]string, 0, len(stats))
				for _, s := range stats {
					rows = append(rows, []string{
						s.Model,
						strconv.Itoa(s.RequestCount),
						strconv.FormatInt(s.PromptTokens, 10),
						strconv.FormatInt(s.CompletionTokens, 10),
						strconv.FormatInt(s.TotalTokens, 10),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Model", "Requests", "Prompt", "Completion", "Total"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to report as YYYY-MM (defaults to the current month)")
	return cmd
}
