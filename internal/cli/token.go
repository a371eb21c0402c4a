package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"seatnext/internal/shared/config"
	"seatnext/internal/shared/middleware"
)

func newTokenCmd() *cobra.Command {
	var (
		role  string
		user  string
		venue string
		ttl   time.Duration
	)

	c := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed API token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToUpper(role)
			switch role {
			case middleware.RolePatron, middleware.RoleStaff, middleware.RoleAdmin:
			default:
				return fmt.Errorf("invalid --role %q (want patron, staff or admin)", role)
			}

			userID := uuid.New()
			if user != "" {
				parsed, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				userID = parsed
			}

			var venueID *uuid.UUID
			if venue != "" {
				parsed, err := uuid.Parse(venue)
				if err != nil {
					return fmt.Errorf("invalid --venue: %w", err)
				}
				venueID = &parsed
			}

			token, err := middleware.IssueToken(config.Load().JWT.Secret, userID, role, venueID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	c.Flags().StringVar(&role, "role", "patron", "patron, staff or admin")
	c.Flags().StringVar(&user, "user", "", "subject id (random when empty)")
	c.Flags().StringVar(&venue, "venue", "", "venue the token is scoped to")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return c
}
