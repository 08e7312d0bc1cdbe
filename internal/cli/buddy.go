package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/willpower-app/willpower/internal/domain"
)

var (
	inviteDifficulty int
	inviteDays       int
)

func init() {
	buddyInviteCmd.Flags().IntVarP(&inviteDifficulty, "difficulty", "d", 3, "Expected difficulty (1-5)")
	buddyInviteCmd.Flags().IntVar(&inviteDays, "days", 0, "Duration in days; makes the challenge extended")

	buddyCmd.AddCommand(
		buddyInviteCmd,
		buddyListCmd,
		buddyAcceptCmd,
		buddyDeclineCmd,
		buddyNudgeCmd,
		buddyPartnerCmd,
	)
	rootCmd.AddCommand(buddyCmd)
}

var buddyCmd = &cobra.Command{
	Use:   "buddy",
	Short: "Take on challenges together with a buddy",
}

var buddyInviteCmd = &cobra.Command{
	Use:   "invite USER NAME",
	Short: "Invite a buddy to a shared challenge",
	Args:  cobra.ExactArgs(2),
	RunE:  runBuddyInvite,
}

var buddyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your buddy challenges",
	RunE:    runBuddyList,
}

var buddyAcceptCmd = &cobra.Command{
	Use:   "accept ID",
	Short: "Accept a buddy invitation",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuddyAccept,
}

var buddyDeclineCmd = &cobra.Command{
	Use:   "decline ID",
	Short: "Decline a buddy invitation",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuddyDecline,
}

var buddyNudgeCmd = &cobra.Command{
	Use:   "nudge ID",
	Short: "Nudge your buddy (once per day)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuddyNudge,
}

var buddyPartnerCmd = &cobra.Command{
	Use:   "partner ID",
	Short: "Show your buddy's progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuddyPartner,
}

func runBuddyInvite(cmd *cobra.Command, args []string) error {
	spec := domain.ChallengeSpec{
		Name:               args[1],
		Type:               domain.ChallengeDaily,
		DifficultyExpected: inviteDifficulty,
	}
	if inviteDays > 0 {
		spec.Type = domain.ChallengeExtended
		spec.DurationDays = inviteDays
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

	b, err := d.Buddies.Invite(context.Background(), uid, args[0], spec)
	if err != nil {
		return err
	}
	fmt.Printf("Invited %s to %q\n  id: %s\n", b.InviteeID, b.Template.Name, b.ID)
	return nil
}

func runBuddyList(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	list, err := d.Buddies.List(context.Background(), uid)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No buddy challenges.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBUDDY\tCHALLENGE\tSTATUS\tCREATED")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			b.ID,
			b.PartnerOf(uid),
			b.Template.Name,
			b.Status,
			b.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runBuddyAccept(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	b, err := d.Buddies.Accept(context.Background(), uid, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Accepted %q with %s\n  your challenge: %s\n", b.Template.Name, b.InviterID, b.ChallengeIDFor(uid))
	return nil
}

func runBuddyDecline(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	b, err := d.Buddies.Decline(context.Background(), uid, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Declined %q from %s\n", b.Template.Name, b.InviterID)
	return nil
}

func runBuddyNudge(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Buddies.SendNudge(context.Background(), uid, args[0])
	if err != nil {
		return err
	}
	if res.AlreadyNudged {
		fmt.Println("Already nudged today. Try again tomorrow.")
		return nil
	}
	fmt.Println("Nudge sent.")
	return nil
}

func runBuddyPartner(cmd *cobra.Command, args []string) error {
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
	p, err := d.Buddies.PartnerProgress(ctx, uid, args[0])
	if err != nil {
		return err
	}
	duo, err := d.Buddies.DuoStreak(ctx, uid, p.PartnerID)
	if err != nil {
		return err
	}

	status := string(p.ChallengeStatus)
	if status == "" {
		status = "not started"
	}
	fmt.Printf("Buddy:      %s\n", p.PartnerID)
	fmt.Printf("Challenge:  %s (%s)\n", status, p.Type)
	if p.TotalMilestones > 0 {
		fmt.Printf("Milestones: %d/%d\n", p.CompletedMilestones, p.TotalMilestones)
	}
	fmt.Printf("Together:   %d challenges completed\n", duo.ChallengesCompletedTogether)
	return nil
}
