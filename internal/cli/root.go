// Package cli implements the willpower command-line interface using Cobra.
// Commands run the engine in-process against the local data directory; serve
// exposes the same engine over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	userFlag    string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "willpower",
	Short: "willpower, a habit and challenge engine",
	Long: `willpower tracks challenges, habits and buddy challenges.
Points, streaks and levels are kept in a local SQLite store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User id to act as (default $WILLPOWER_USER or the OS user)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show engine logs")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
