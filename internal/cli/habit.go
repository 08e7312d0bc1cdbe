package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willpower-app/willpower/internal/domain"
)

func init() {
	rootCmd.AddCommand(habitCmd)
}

var habitCmd = &cobra.Command{
	Use:       "habit easy|challenging",
	Short:     "Log a completed habit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"easy", "challenging"},
	RunE:      runHabit,
}

func runHabit(cmd *cobra.Command, args []string) error {
	difficulty, err := domain.ParseHabitDifficulty(args[0])
	if err != nil {
		return err
	}
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Bank.LogHabit(context.Background(), uid, difficulty)
	if err != nil {
		return err
	}
	fmt.Println(describeAward(res.PointsAwarded, res.NewStreak, res.TierUp, res.LevelUp))
	fmt.Printf("Total: %d points\n", res.TotalPoints)
	return nil
}
