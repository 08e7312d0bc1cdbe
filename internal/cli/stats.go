package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how often you repeated each challenge",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	uid, err := currentUser()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.Challenges.RepeatStats(context.Background(), uid)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No finished challenges yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOMPLETED\tATTEMPTS\tFIRST\tLAST")
	for _, s := range stats {
		first, last := "-", "-"
		if s.FirstCompletedAt != nil {
			first = s.FirstCompletedAt.Format("2006-01-02")
		}
		if s.LastCompletedAt != nil {
			last = s.LastCompletedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.Name, s.TotalCompletions, s.TotalAttempts, first, last)
	}
	return w.Flush()
}
