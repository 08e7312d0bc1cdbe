package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willpower-app/willpower/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show points, level, streak and the active challenge",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := context.Background()

	sum, err := d.Bank.Summary(ctx, uid)
	if err != nil {
		return err
	}
	fmt.Printf("User:    %s\n", sum.UserID)
	fmt.Printf("Points:  %d\n", sum.TotalPoints)
	fmt.Printf("Level:   %d %s (%.0f%%, %d to next)\n", sum.Level.Number, sum.Level.Title, sum.ProgressPct, sum.PointsToNext)
	fmt.Printf("Streak:  %d days (longest %d, x%.1f)\n", sum.CurrentStreak, sum.LongestStreak, sum.Tier.Multiplier)

	ch, err := d.Challenges.Active(ctx, uid)
	switch {
	case errors.Is(err, domain.ErrChallengeNotFound):
		fmt.Println("Active:  none")
	case err != nil:
		return err
	default:
		fmt.Printf("Active:  %s (%s, day %d)\n", ch.Name, ch.Type, d.Challenges.CurrentDayNumber(ch))
	}

	for _, st := range d.Health.CheckNow(ctx) {
		if !st.Healthy {
			fmt.Printf("Health:  %s failing: %s\n", st.Name, st.Error)
		}
	}
	return nil
}
