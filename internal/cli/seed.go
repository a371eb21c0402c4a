package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"seatnext/internal/allocation"
	"seatnext/internal/orders"
	"seatnext/internal/queue"
)

var seedTableCapacities = []int{2, 2, 2, 4, 4, 4, 6, 8}

var seedPartySizes = []int{2, 4, 3, 6, 2, 10}

func newSeedCmd() *cobra.Command {
	var (
		venue  string
		orderN int
	)

	c := &cobra.Command{
		Use:   "seed",
		Short: "Create demo tables, queue entries and kitchen orders for a venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			venueID := uuid.New()
			if venue != "" {
				parsed, err := uuid.Parse(venue)
				if err != nil {
					return fmt.Errorf("invalid --venue: %w", err)
				}
				venueID = parsed
			}

			a, closeFn, err := openApp()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			for i, capacity := range seedTableCapacities {
				table := &allocation.VenueTable{
					VenueID:  venueID,
					Label:    fmt.Sprintf("T%d", i+1),
					Capacity: capacity,
					Active:   true,
				}
				if err := a.Tables.CreateTable(ctx, table); err != nil {
					return fmt.Errorf("create table %s: %w", table.Label, err)
				}
			}
			fmt.Fprintf(out, "created %d tables\n", len(seedTableCapacities))

			for _, size := range seedPartySizes {
				if _, err := a.Queue.Join(ctx, venueID, nil, &queue.JoinQueueRequest{PartySize: size}); err != nil {
					return fmt.Errorf("join party of %d: %w", size, err)
				}
			}
			fmt.Fprintf(out, "queued %d parties\n", len(seedPartySizes))

			for i := 0; i < orderN; i++ {
				_, err := a.Orders.Place(ctx, venueID, &orders.PlaceOrderRequest{
					OrderNumber: fmt.Sprintf("A%03d", i+1),
					PrepMinutes: 1 + i*2,
				})
				if err != nil {
					return fmt.Errorf("place order: %w", err)
				}
			}
			fmt.Fprintf(out, "placed %d orders\n", orderN)

			fmt.Fprintf(out, "venue %s\n", venueID)
			return nil
		},
	}

	c.Flags().StringVar(&venue, "venue", "", "venue id (random when empty)")
	c.Flags().IntVar(&orderN, "orders", 3, "number of kitchen orders to place")
	return c
}
