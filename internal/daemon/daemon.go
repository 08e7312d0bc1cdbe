package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/api"
	"github.com/willpower-app/willpower/internal/app/challenge"
	"github.com/willpower-app/willpower/internal/app/engagement"
	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/health"
	"github.com/willpower-app/willpower/internal/infra/logger"
	_ "github.com/willpower-app/willpower/internal/infra/metrics" // Register Prometheus metrics
	"github.com/willpower-app/willpower/internal/infra/push"
	"github.com/willpower-app/willpower/internal/infra/sqlite"
)

// Daemon is the willpower runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *zap.Logger
	DB     *sqlite.DB
	Server *api.Server
	cancel context.CancelFunc

	Notifications *engagement.Notifications
	Bank          *engagement.Bank
	Challenges    *challenge.Service
	Buddies       *challenge.Coordinator
	Health        *health.Checker
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	loc, _ := cfg.Location()

	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	clock := engagement.Clock{Now: time.Now, Location: loc}
	policy := domain.NotificationPolicy{
		MaxPerDay:  cfg.Notifications.MaxPerDay,
		QuietStart: cfg.Notifications.QuietStart,
		QuietEnd:   cfg.Notifications.QuietEnd,
	}

	d := &Daemon{Config: cfg, Log: log, DB: db}
	d.Notifications = engagement.NewNotifications(db, policy, clock, d.pusher(), log)
	d.Bank = engagement.NewBank(db, d.Notifications, clock, log)
	d.Challenges = challenge.NewService(db, d.Bank, d.Notifications, challenge.Config{
		MaxExtendedDays: cfg.Engine.MaxExtendedDays,
		ConflictRetries: cfg.Engine.ConflictRetries,
	}, log)
	d.Buddies = challenge.NewCoordinator(d.Challenges)
	d.Health = health.NewChecker(db, cfg.DataDir())

	srv := api.NewServer(api.Services{
		Bank:          d.Bank,
		Notifications: d.Notifications,
		Challenges:    d.Challenges,
		Buddies:       d.Buddies,
		Health:        d.Health,
	}, log)
	srv.SetCORSOrigins(cfg.Server.CORSOrigins)
	srv.SetModerators(cfg.Server.Moderators)
	if cfg.Server.RateLimitRPS > 0 {
		srv.SetRateLimiter(api.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// pusher picks FCM when push is enabled and credentials load, otherwise a
// logging pusher that only records what would have been sent.
func (d *Daemon) pusher() domain.Pusher {
	if !d.Config.Push.Enabled {
		return push.NewLog(d.Log)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fcm, err := push.NewFCM(ctx, d.Config.Push.CredentialsFile, d.Log)
	if err != nil {
		d.Log.Warn("push disabled, FCM init failed", zap.Error(err))
		return push.NewLog(d.Log)
	}
	return push.Guard(fcm, push.DefaultBreakerConfig(), d.Log)
}

// Addr is the listen address.
func (d *Daemon) Addr() string {
	return fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	addr := d.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			d.Log.Warn("http shutdown", zap.Error(err))
		}
	}()

	d.Log.Info("willpower serving",
		zap.String("addr", "http://"+addr),
		zap.String("data_dir", d.Config.DataDir()),
		zap.String("timezone", d.Config.Engine.Timezone),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus),
		zap.Bool("push", d.Config.Push.Enabled))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.Log != nil {
		_ = d.Log.Sync()
	}
}
