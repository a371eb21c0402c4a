package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"seatnext/internal/queue"
)

func newQueueCmd() *cobra.Command {
	var (
		venue string
		all   bool
	)

	c := &cobra.Command{
		Use:   "queue",
		Short: "Print a venue's queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			venueID, err := uuid.Parse(venue)
			if err != nil {
				return fmt.Errorf("invalid --venue: %w", err)
			}

			a, closeFn, err := openApp()
			if err != nil {
				return err
			}
			defer closeFn()

			statuses := []queue.Status{queue.StatusWaiting, queue.StatusReady, queue.StatusAwaitingConfirmation}
			if all {
				statuses = nil
			}
			entries, err := a.Queue.ListVenue(cmd.Context(), venueID, statuses...)
			if err != nil {
				return err
			}

			printEntries(cmd.OutOrStdout(), entries, a.Clock.Now())
			return nil
		},
	}

	c.Flags().StringVar(&venue, "venue", "", "venue id")
	c.Flags().BoolVar(&all, "all", false, "include resolved entries")
	_ = c.MarkFlagRequired("venue")
	return c
}

func printEntries(out io.Writer, entries []queue.QueueEntry, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tID\tPARTY\tSTATUS\tREMAINING\tLINKED")
	for i := range entries {
		e := &entries[i]
		remaining := "-"
		if d := e.TimeRemaining(now); d != nil && e.IsCountingDown() {
			remaining = d.Round(time.Second).String()
		}
		linked := "-"
		if e.LinkedReservationID != nil {
			linked = e.LinkedReservationID.String()[:8]
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n", e.Position, e.ID, e.PartySize, e.DisplayState(), remaining, linked)
	}
	_ = w.Flush()
}
