package cli

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/willpower-app/willpower/internal/daemon"
	"github.com/willpower-app/willpower/internal/domain"
)

// openDaemon wires the engine for a one-shot command. Engine logs are
// suppressed unless --verbose is set.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logging.Encoding = "console"
	if !verboseFlag {
		cfg.Logging.Level = "error"
	}
	return daemon.NewWithConfig(cfg)
}

// currentUser resolves the acting user id.
func currentUser() (string, error) {
	if userFlag != "" {
		return userFlag, nil
	}
	if env := os.Getenv("WILLPOWER_USER"); env != "" {
		return env, nil
	}
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "", fmt.Errorf("no user id: pass --user or set WILLPOWER_USER")
	}
	return u.Username, nil
}

// describeAward renders the streak and level feedback shared by every award.
func describeAward(points int64, streak int, tierUp *domain.TierUp, levelUp *domain.LevelUp) string {
	var b strings.Builder
	fmt.Fprintf(&b, "+%d points (streak %d)", points, streak)
	if tierUp != nil {
		fmt.Fprintf(&b, "\n  Streak tier up: x%.1f multiplier at %d days", tierUp.Multiplier, tierUp.Streak)
	}
	if levelUp != nil {
		fmt.Fprintf(&b, "\n  Level up: %d %s", levelUp.Level, levelUp.Title)
	}
	return b.String()
}

func formatPoints(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}
