package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/signlearn/internal/store"
)

func newSessionsCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions [id]",
		Short: "List recorded sessions, or the predictions of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := c.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			if len(args) == 1 {
				return showSession(cmd.Context(), backend, args[0], limit, cmd.OutOrStdout())
			}
			return listSessions(cmd.Context(), backend, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows to show")
	return cmd
}

func listSessions(ctx context.Context, backend store.Backend, limit int, out io.Writer) error {
	sessions, err := backend.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	summary, err := backend.Summary(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tTARGET\tWINDOW\tFRAMES\tSTARTED\tDURATION")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, s.Source, orDash(s.Target), s.WindowSize, s.Frames,
			s.StartedAt.Local().Format(time.DateTime), duration(s))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d sessions, %d predictions, %d matched\n",
		summary.Sessions, summary.Predictions, summary.Matched)

	outcomes := make([]string, 0, len(summary.ByOutcome))
	for o := range summary.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(out, "  %-10s %d\n", o, summary.ByOutcome[store.Outcome(o)])
	}
	return nil
}

func showSession(ctx context.Context, backend store.Backend, id string, limit int, out io.Writer) error {
	s, err := backend.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	preds, err := backend.ListPredictions(ctx, id, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "session %s (%s), target %s, %d frames, %s\n\n",
		s.ID, s.Source, orDash(s.Target), s.Frames, duration(s))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tOUTCOME\tLABEL\tMATCHED\tLATENCY\tDETAIL")
	for _, p := range preds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n",
			p.Sequence, p.Outcome, orDash(p.Label), p.Matched,
			p.Latency.Round(time.Millisecond), p.Detail)
	}
	return tw.Flush()
}

func duration(s *store.Session) string {
	if s.EndedAt == nil {
		return "open"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
