package engagement_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/willpower-app/willpower/internal/app/engagement"
	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/infra/sqlite"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixedClock returns a clock reading *now, so tests can move time.
func fixedClock(now *time.Time) engagement.Clock {
	return engagement.Clock{Now: func() time.Time { return *now }, Location: time.UTC}
}

type recordingPusher struct {
	mu    sync.Mutex
	sent  []domain.Notification
	fails bool
}

func (p *recordingPusher) Push(_ context.Context, _ []domain.DeviceToken, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails {
		return errors.New("push unavailable")
	}
	p.sent = append(p.sent, n)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Policy Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestComputePoints(t *testing.T) {
	tests := []struct {
		name       string
		action     domain.Action
		difficulty int
		streak     int
		want       int64
	}{
		{"success is raw difficulty", domain.ActionChallengeSuccess, 5, 30, 5},
		{"success difficulty 1", domain.ActionChallengeSuccess, 1, 0, 1},
		{"failure is flat", domain.ActionChallengeFailure, 5, 0, 1},
		{"easy habit no streak", domain.ActionHabit, 1, 0, 1},
		{"easy habit 1.2x rounds down", domain.ActionHabit, 1, 3, 1},
		{"easy habit 1.5x rounds up", domain.ActionHabit, 1, 7, 2},
		{"challenging habit 1.75x", domain.ActionHabit, 2, 14, 4},
		{"challenging habit 2x", domain.ActionHabit, 2, 45, 4},
		{"milestone is user chosen", domain.ActionMilestone, 4, 30, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engagement.ComputePoints(tt.action, tt.difficulty, tt.streak)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputePoints = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputePoints_Validation(t *testing.T) {
	tests := []struct {
		action     domain.Action
		difficulty int
		want       error
	}{
		{domain.ActionChallengeSuccess, 0, domain.ErrInvalidDifficulty},
		{domain.ActionChallengeSuccess, 6, domain.ErrInvalidDifficulty},
		{domain.ActionChallengeFailure, 6, domain.ErrInvalidDifficulty},
		{domain.ActionHabit, 3, domain.ErrInvalidHabitDifficulty},
		{domain.ActionMilestone, 0, domain.ErrInvalidMilestonePoints},
		{"bogus", 1, domain.ErrInvalidAction},
	}
	for _, tt := range tests {
		_, err := engagement.ComputePoints(tt.action, tt.difficulty, 0)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s/%d: expected %v, got %v", tt.action, tt.difficulty, tt.want, err)
		}
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("%s/%d: expected validation kind", tt.action, tt.difficulty)
		}
	}
}

func TestApplyMultiplier_Minimum(t *testing.T) {
	if got := engagement.ApplyMultiplier(0, 1.0); got != 1 {
		t.Errorf("expected minimum 1, got %d", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestMultiplier_Table(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 1.0},
		{3, 1.2},
		{6, 1.2},
		{7, 1.5},
		{13, 1.5},
		{14, 1.75},
		{29, 1.75},
		{30, 2.0},
		{365, 2.0},
	}
	for _, tt := range tests {
		if got := engagement.Multiplier(tt.days); got != tt.want {
			t.Errorf("Multiplier(%d) = %.2f, want %.2f", tt.days, got, tt.want)
		}
	}
}

func TestMultiplier_NonDecreasing(t *testing.T) {
	prev := engagement.Multiplier(0)
	for s := 1; s <= 400; s++ {
		m := engagement.Multiplier(s)
		if m < prev {
			t.Fatalf("multiplier decreased at %d: %.2f < %.2f", s, m, prev)
		}
		prev = m
	}
}

func TestTiers_Contiguous(t *testing.T) {
	tiers := engagement.Tiers()
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinDays != tiers[i-1].MaxDays+1 {
			t.Errorf("gap between tier %d and %d", i-1, i)
		}
	}
	if tiers[len(tiers)-1].MaxDays != 0 {
		t.Error("last tier should be unbounded")
	}
}

func TestAdvanceStreak(t *testing.T) {
	day := domain.Date("2025-07-10")
	tests := []struct {
		name       string
		last       domain.Date
		streak     int
		wantStreak int
		wantTierUp bool
	}{
		{"first activity", "", 0, 1, false},
		{"consecutive", "2025-07-09", 4, 5, false},
		{"same day", "2025-07-10", 4, 4, false},
		{"gap resets", "2025-07-07", 12, 1, false},
		{"2 to 3 tiers up", "2025-07-09", 2, 3, true},
		{"6 to 7 tiers up", "2025-07-09", 6, 7, true},
		{"13 to 14 tiers up", "2025-07-09", 13, 14, true},
		{"29 to 30 tiers up", "2025-07-09", 29, 30, true},
		{"30 to 31 stays", "2025-07-09", 30, 31, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := domain.WillpowerRecord{CurrentStreak: tt.streak, LastActivityDate: tt.last, LongestStreak: tt.streak}
			got, tierUp := engagement.AdvanceStreak(rec, day)
			if got.CurrentStreak != tt.wantStreak {
				t.Errorf("streak = %d, want %d", got.CurrentStreak, tt.wantStreak)
			}
			if (tierUp != nil) != tt.wantTierUp {
				t.Errorf("tierUp = %+v, want %v", tierUp, tt.wantTierUp)
			}
			if got.LastActivityDate != day {
				t.Errorf("last activity = %s", got.LastActivityDate)
			}
			if got.LongestStreak < got.CurrentStreak {
				t.Errorf("longest %d < current %d", got.LongestStreak, got.CurrentStreak)
			}
		})
	}
}

func TestEffectiveStreak(t *testing.T) {
	rec := domain.WillpowerRecord{CurrentStreak: 5, LastActivityDate: "2025-07-10"}
	if got := engagement.EffectiveStreak(rec, "2025-07-10"); got != 5 {
		t.Errorf("same day: %d", got)
	}
	if got := engagement.EffectiveStreak(rec, "2025-07-11"); got != 5 {
		t.Errorf("next day: %d", got)
	}
	if got := engagement.EffectiveStreak(rec, "2025-07-13"); got != 0 {
		t.Errorf("lapsed: %d", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLevelFor(t *testing.T) {
	tests := []struct {
		points int64
		want   int
	}{
		{0, 1},
		{49, 1},
		{50, 2},
		{149, 2},
		{150, 3},
		{151, 3},
		{3999, 9},
		{4000, 10},
		{1_000_000, 10},
	}
	for _, tt := range tests {
		if got := engagement.LevelFor(tt.points); got.Number != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.points, got.Number, tt.want)
		}
	}
}

func TestLevelFor_NonDecreasing(t *testing.T) {
	prev := 0
	for p := int64(0); p <= 5000; p += 7 {
		lvl := engagement.LevelFor(p).Number
		if lvl < prev {
			t.Fatalf("level decreased at %d", p)
		}
		prev = lvl
	}
}

func TestLevelUpBetween_ReportsFinalLevel(t *testing.T) {
	up := engagement.LevelUpBetween(40, 320)
	if up == nil || up.Level != 4 {
		t.Fatalf("expected level-up to 4, got %+v", up)
	}
	if engagement.LevelUpBetween(60, 140) != nil {
		t.Error("no level-up within a level")
	}
}

func TestLevel_ProgressAndRemaining(t *testing.T) {
	if got := engagement.PointsToNextLevel(145); got != 5 {
		t.Errorf("PointsToNextLevel(145) = %d, want 5", got)
	}
	if got := engagement.ProgressPct(100); got != 50.0 {
		t.Errorf("ProgressPct(100) = %.1f, want 50.0", got)
	}
	if got := engagement.PointsToNextLevel(5000); got != 0 {
		t.Errorf("max level remaining = %d", got)
	}
	if got := engagement.ProgressPct(5000); got != 100.0 {
		t.Errorf("max level progress = %.1f", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bank Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestBank_SameDayIsIdempotentForStreak(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	bank := engagement.NewBank(db, nil, fixedClock(&now), nil)
	ctx := context.Background()

	first, err := bank.LogHabit(ctx, "alice", domain.HabitEasy)
	if err != nil {
		t.Fatalf("habit: %v", err)
	}
	second, err := bank.LogHabit(ctx, "alice", domain.HabitChallenging)
	if err != nil {
		t.Fatalf("habit: %v", err)
	}
	if first.NewStreak != 1 || second.NewStreak != 1 {
		t.Errorf("expected streak 1 twice, got %d and %d", first.NewStreak, second.NewStreak)
	}
	if second.TotalPoints != 3 {
		t.Errorf("expected total 3, got %d", second.TotalPoints)
	}

	now = now.AddDate(0, 0, 1)
	third, _ := bank.LogHabit(ctx, "alice", domain.HabitEasy)
	if third.NewStreak != 2 {
		t.Errorf("expected streak 2 next day, got %d", third.NewStreak)
	}
}

func TestBank_ConcurrentSameDayActivities(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	bank := engagement.NewBank(db, nil, fixedClock(&now), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bank.LogHabit(ctx, "alice", domain.HabitEasy); err != nil {
				t.Errorf("habit: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := bank.Record(ctx, "alice")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.CurrentStreak != 1 || rec.TotalPoints != 8 {
		t.Errorf("expected streak 1 / 8 points, got %d / %d", rec.CurrentStreak, rec.TotalPoints)
	}
}

func TestBank_ValidationLeavesRecordUntouched(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	bank := engagement.NewBank(db, nil, fixedClock(&now), nil)
	ctx := context.Background()

	_, err := bank.AwardPoints(ctx, "alice", domain.PointAward{Action: domain.ActionChallengeSuccess, Difficulty: 9})
	if !errors.Is(err, domain.ErrInvalidDifficulty) {
		t.Fatalf("expected ErrInvalidDifficulty, got %v", err)
	}
	rec, _ := bank.Record(ctx, "alice")
	if rec.TotalPoints != 0 || rec.CurrentStreak != 0 || !rec.LastActivityDate.IsZero() {
		t.Errorf("failed award mutated record: %+v", rec)
	}

	if _, err := bank.AwardPoints(ctx, "", domain.PointAward{Action: domain.ActionHabit, Difficulty: 1}); !errors.Is(err, domain.ErrMissingUser) {
		t.Errorf("expected ErrMissingUser, got %v", err)
	}
}

func TestBank_ReflectionBonusOnlyForChallenges(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	bank := engagement.NewBank(db, nil, fixedClock(&now), nil)
	ctx := context.Background()

	res, _ := bank.AwardPoints(ctx, "alice", domain.PointAward{Action: domain.ActionChallengeFailure, Difficulty: 3, Reflection: "tough day"})
	if res.PointsAwarded != 2 {
		t.Errorf("failure + reflection = %d, want 2", res.PointsAwarded)
	}
	res, _ = bank.AwardPoints(ctx, "alice", domain.PointAward{Action: domain.ActionHabit, Difficulty: 1, Reflection: "ignored"})
	if res.PointsAwarded != 1 {
		t.Errorf("habit with reflection = %d, want 1", res.PointsAwarded)
	}
}

func TestBank_ReverseClampsAtZero(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	bank := engagement.NewBank(db, nil, fixedClock(&now), nil)
	ctx := context.Background()

	bank.AwardPoints(ctx, "alice", domain.PointAward{Action: domain.ActionMilestone, Difficulty: 5})

	var removed int64
	err := db.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		removed, err = bank.Reverse(ctx, tx, "alice", 12)
		return err
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if removed != 5 {
		t.Errorf("expected 5 removed, got %d", removed)
	}
	rec, _ := bank.Record(ctx, "alice")
	if rec.TotalPoints != 0 {
		t.Errorf("expected 0, got %d", rec.TotalPoints)
	}
	if rec.CurrentStreak != 1 {
		t.Errorf("reverse must not touch the streak, got %d", rec.CurrentStreak)
	}
}

func TestBank_Summary(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	bank := engagement.NewBank(db, nil, fixedClock(&now), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bank.AwardPoints(ctx, "alice", domain.PointAward{Action: domain.ActionChallengeSuccess, Difficulty: 5})
		now = now.AddDate(0, 0, 1)
	}

	sum, err := bank.Summary(ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalPoints != 15 || sum.Level.Number != 1 || sum.PointsToNext != 35 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.CurrentStreak != 3 || sum.Tier.Multiplier != 1.2 {
		t.Errorf("unexpected streak in summary: %+v", sum)
	}

	now = now.AddDate(0, 0, 3)
	sum, _ = bank.Summary(ctx, "alice")
	if sum.CurrentStreak != 0 || sum.LongestStreak != 3 {
		t.Errorf("lapsed streak should read 0 (longest 3), got %+v", sum)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Tests
// ═══════════════════════════════════════════════════════════════════════════

func enqueue(t *testing.T, db *sqlite.DB, svc *engagement.Notifications, n domain.Notification) (domain.Notification, bool) {
	t.Helper()
	var (
		out domain.Notification
		ok  bool
	)
	err := db.RunTx(context.Background(), func(tx domain.Tx) error {
		var err error
		out, ok, err = svc.Enqueue(context.Background(), tx, n)
		return err
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return out, ok
}

func TestNotification_DailyLimit(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc := engagement.NewNotifications(db, domain.NotificationPolicy{
		MaxPerDay:  1,
		QuietStart: "23:00",
		QuietEnd:   "05:00",
	}, fixedClock(&now), nil, nil)

	if _, ok := enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyLevelUp, Title: "First"}); !ok {
		t.Error("first should succeed")
	}
	if _, ok := enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyTierUp, Title: "Second"}); ok {
		t.Error("second should be suppressed (daily limit)")
	}
	// Messages from a buddy are not engine chatter and bypass the cap.
	if _, ok := enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyNudge, Title: "Nudge"}); !ok {
		t.Error("nudge should bypass the cap")
	}
	// Other users have their own cap.
	if _, ok := enqueue(t, db, svc, domain.Notification{UserID: "bob", Type: domain.NotifyLevelUp, Title: "First"}); !ok {
		t.Error("bob's first should succeed")
	}

	now = now.AddDate(0, 0, 1)
	if _, ok := enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyLevelUp, Title: "Tomorrow"}); !ok {
		t.Error("cap should reset the next day")
	}
}

func TestNotification_PendingAndMarkShown(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc := engagement.NewNotifications(db, domain.DefaultNotificationPolicy(), fixedClock(&now), nil, nil)
	ctx := context.Background()

	first, _ := enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyNudge, Title: "one"})
	enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyNudge, Title: "two"})

	pending, err := svc.Pending(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Title != "two" {
		t.Fatalf("expected newest first, got %+v", pending)
	}

	if err := svc.MarkShown(ctx, "bob", first.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("other user mark: expected not_found, got %v", err)
	}
	if err := svc.MarkShown(ctx, "alice", first.ID); err != nil {
		t.Fatalf("mark shown: %v", err)
	}
	pending, _ = svc.Pending(ctx, "alice", 10)
	if len(pending) != 1 {
		t.Errorf("expected 1 pending after marking shown, got %d", len(pending))
	}
}

func TestNotification_DeliverSkipsQuietHours(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 23, 30, 0, 0, time.UTC)
	pusher := &recordingPusher{}
	svc := engagement.NewNotifications(db, domain.DefaultNotificationPolicy(), fixedClock(&now), pusher, nil)
	ctx := context.Background()

	if _, err := svc.RegisterDevice(ctx, "alice", "tok-1", "android"); err != nil {
		t.Fatalf("register: %v", err)
	}
	n, _ := enqueue(t, db, svc, domain.Notification{UserID: "alice", Type: domain.NotifyNudge, Title: "late"})

	svc.Deliver(ctx, []domain.Notification{n})
	if len(pusher.sent) != 0 {
		t.Error("expected no push during quiet hours")
	}

	now = time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)
	svc.Deliver(ctx, []domain.Notification{n})
	if len(pusher.sent) != 1 {
		t.Errorf("expected push outside quiet hours, got %d", len(pusher.sent))
	}
}

func TestNotification_DeliverFailureIsBestEffort(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	pusher := &recordingPusher{fails: true}
	notes := engagement.NewNotifications(db, domain.DefaultNotificationPolicy(), fixedClock(&now), pusher, nil)
	bank := engagement.NewBank(db, notes, fixedClock(&now), nil)
	ctx := context.Background()

	notes.RegisterDevice(ctx, "alice", "tok-1", "ios")
	res, err := bank.AwardPoints(ctx, "alice", domain.PointAward{Action: domain.ActionMilestone, Difficulty: 5})
	if err != nil {
		t.Fatalf("award must not fail on push errors: %v", err)
	}
	if res.TotalPoints != 5 {
		t.Errorf("expected 5, got %d", res.TotalPoints)
	}
}

func TestNotification_RegisterDeviceIdempotent(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc := engagement.NewNotifications(db, domain.DefaultNotificationPolicy(), fixedClock(&now), nil, nil)
	ctx := context.Background()

	a, _ := svc.RegisterDevice(ctx, "alice", "tok-1", "ios")
	b, _ := svc.RegisterDevice(ctx, "alice", "tok-1", "ios")
	if a.ID != b.ID {
		t.Errorf("expected same device id, got %s and %s", a.ID, b.ID)
	}
	devs, _ := svc.Devices(ctx, "alice")
	if len(devs) != 1 {
		t.Errorf("expected 1 device, got %d", len(devs))
	}
	if _, err := svc.RegisterDevice(ctx, "alice", "", "ios"); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("expected validation error for empty token, got %v", err)
	}
}

func TestNotification_DefaultPolicy(t *testing.T) {
	policy := domain.DefaultNotificationPolicy()
	if policy.MaxPerDay != 3 {
		t.Errorf("expected max 3/day, got %d", policy.MaxPerDay)
	}
	if policy.QuietStart != "22:00" {
		t.Errorf("expected quiet start 22:00, got %s", policy.QuietStart)
	}
	if policy.QuietEnd != "08:00" {
		t.Errorf("expected quiet end 08:00, got %s", policy.QuietEnd)
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
