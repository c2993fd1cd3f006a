package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ArticlesConsolidator/internal/app"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/usecase"
)

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var (
		days     int
		standard string
		sources  []string
		notify   bool
	)

	cmd := &cobra.Command{
		Use:   "query <topic>",
		Short: "Find and cluster the articles most relevant to a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]
			req := usecase.Request{Topic: topic, ClassificationStandard: standard, SourceIDs: sources}
			if cmd.Flags().Changed("days") {
				if days < 0 {
					return errors.New("--days must not be negative")
				}
				req.TimeRangeDays = &days
			} else if d := ctx.ensureConfig().Query.TimeRangeDays; d > 0 {
				req.TimeRangeDays = &d
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withApp(func(application *app.Application) error {
				out := cmd.OutOrStdout()
				renderer := newProgressRenderer(cmd.ErrOrStderr())
				res, err := application.Query(runCtx, req, renderer)
				renderer.finish()
				if err != nil {
					return errors.New(domain.HumanMessage(err))
				}

				fmt.Fprint(out, renderResult(res, shouldColorize(out)))
				if res.Warning != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", domain.HumanMessage(res.Warning))
				}

				if notify {
					if err := application.PublishDigest(runCtx, topic, res); err != nil {
						return err
					}
					fmt.Fprintln(out, "Digest sent to Telegram")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "Only consider articles from the last N days (defaults to query.timeRangeDays)")
	cmd.Flags().StringVarP(&standard, "standard", "s", "", "Classification standard used to group the articles")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Restrict to feed IDs (repeatable)")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send the digest to the configured Telegram chat")
	return cmd
}
