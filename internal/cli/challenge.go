package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/willpower-app/willpower/internal/domain"
)

var (
	createDays        int
	createDifficulty  int
	createDescription string
	createTemplate    string

	checkInPoints int
	checkInFailed bool
	checkInNote   string

	completeFailed     bool
	completeDifficulty int
	completeReflection string
)

func init() {
	challengeCreateCmd.Flags().IntVarP(&createDifficulty, "difficulty", "d", 3, "Expected difficulty (1-5)")
	challengeCreateCmd.Flags().IntVar(&createDays, "days", 0, "Duration in days; makes the challenge extended")
	challengeCreateCmd.Flags().StringVar(&createDescription, "description", "", "Optional description")
	challengeCreateCmd.Flags().StringVar(&createTemplate, "template", "", "Start from an approved community template")

	challengeCheckInCmd.Flags().IntVarP(&checkInPoints, "points", "p", 3, "How hard the day was (1-5)")
	challengeCheckInCmd.Flags().BoolVar(&checkInFailed, "failed", false, "Record the day as not succeeded")
	challengeCheckInCmd.Flags().StringVar(&checkInNote, "note", "", "Optional note")

	challengeCompleteCmd.Flags().BoolVar(&completeFailed, "failed", false, "Log the challenge as failed")
	challengeCompleteCmd.Flags().IntVarP(&completeDifficulty, "difficulty", "d", 0, "Actual difficulty (default: expected)")
	challengeCompleteCmd.Flags().StringVarP(&completeReflection, "reflection", "r", "", "Reflection text (+1 point)")

	challengeCmd.AddCommand(
		challengeCreateCmd,
		challengeListCmd,
		challengeCheckInCmd,
		challengeCompleteCmd,
		challengeCancelCmd,
		challengeArchiveCmd,
		challengeDeleteCmd,
	)
	rootCmd.AddCommand(challengeCmd)
}

var challengeCmd = &cobra.Command{
	Use:     "challenge",
	Aliases: []string{"ch"},
	Short:   "Create and track challenges",
}

var challengeCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Start a new challenge (daily unless --days is set)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChallengeCreate,
}

var challengeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your challenges",
	RunE:    runChallengeList,
}

var challengeCheckInCmd = &cobra.Command{
	Use:   "check-in ID DAY",
	Short: "Check in a milestone day of an extended challenge",
	Args:  cobra.ExactArgs(2),
	RunE:  runChallengeCheckIn,
}

var challengeCompleteCmd = &cobra.Command{
	Use:   "complete ID",
	Short: "Finish a challenge as completed (or --failed)",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallengeComplete,
}

var challengeCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel an active challenge without points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return retireChallenge(args[0], domain.ChallengeCancelled)
	},
}

var challengeArchiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "Archive an active challenge without an outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return retireChallenge(args[0], domain.ChallengeArchived)
	},
}

var challengeDeleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Delete a finished challenge and remove its points",
	Args:    cobra.ExactArgs(1),
	RunE:    runChallengeDelete,
}

func runChallengeCreate(cmd *cobra.Command, args []string) error {
	spec := domain.ChallengeSpec{
		Description:        createDescription,
		Type:               domain.ChallengeDaily,
		DifficultyExpected: createDifficulty,
		TemplateID:         createTemplate,
	}
	if len(args) == 1 {
		spec.Name = args[0]
	}
	if createDays > 0 {
		spec.Type = domain.ChallengeExtended
		spec.DurationDays = createDays
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

	ch, err := d.Challenges.Create(context.Background(), uid, spec)
	if err != nil {
		return err
	}
	fmt.Printf("Started %q (%s, difficulty %d)\n", ch.Name, ch.Type, ch.DifficultyExpected)
	fmt.Printf("  id: %s\n", ch.ID)
	if ch.Type == domain.ChallengeExtended {
		fmt.Printf("  %d milestones, starting %s\n", len(ch.Milestones), ch.StartDate)
	}
	return nil
}

func runChallengeList(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	list, err := d.Challenges.List(context.Background(), uid)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No challenges yet. Run 'willpower challenge create NAME' to start one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tPROGRESS\tPOINTS\tSTARTED")
	for _, ch := range list {
		progress := "-"
		if ch.Type == domain.ChallengeExtended {
			progress = fmt.Sprintf("%d/%d", ch.CompletedMilestones(), len(ch.Milestones))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ch.ID,
			ch.Name,
			ch.Type,
			ch.Status,
			progress,
			formatPoints(ch.PointsAwarded),
			ch.StartDate,
		)
	}
	return w.Flush()
}

func runChallengeCheckIn(cmd *cobra.Command, args []string) error {
	day, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("DAY must be a number: %w", err)
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

	res, err := d.Challenges.CheckInMilestone(context.Background(), uid, args[0], domain.CheckIn{
		DayNumber: day,
		Succeeded: !checkInFailed,
		Points:    checkInPoints,
		Note:      checkInNote,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Day %d checked in: %s\n", day, describeAward(res.PointsAwarded, res.NewStreak, res.TierUp, res.LevelUp))
	if res.ChallengeCompleted {
		fmt.Printf("All milestones done. Challenge completed with %d points.\n", res.ChallengePoints)
	}
	return nil
}

func runChallengeComplete(cmd *cobra.Command, args []string) error {
	outcome := domain.Outcome{
		Status:           domain.ChallengeCompleted,
		DifficultyActual: completeDifficulty,
		Reflection:       completeReflection,
	}
	if completeFailed {
		outcome.Status = domain.ChallengeFailed
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

	res, err := d.Challenges.Complete(context.Background(), uid, args[0], outcome)
	if err != nil {
		return err
	}
	fmt.Printf("Challenge %s: %s\n", outcome.Status, describeAward(res.PointsAwarded, res.NewStreak, res.TierUp, res.LevelUp))
	return nil
}

func retireChallenge(id string, status domain.ChallengeStatus) error {
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
	var ch domain.Challenge
	if status == domain.ChallengeCancelled {
		ch, err = d.Challenges.Cancel(ctx, uid, id)
	} else {
		ch, err = d.Challenges.Archive(ctx, uid, id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Challenge %q %s\n", ch.Name, ch.Status)
	return nil
}

func runChallengeDelete(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Challenges.Delete(context.Background(), uid, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %s (-%d points)\n", args[0], res.PointsRemoved)
	return nil
}
