package engagement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/domain"
)

// Notifications manages the per-user notification feed and push delivery.
//   - Level-ups and tier-ups count toward the daily cap (policy.MaxPerDay)
//   - Nudges and buddy messages come from another person and bypass the cap
//   - Nothing is pushed during quiet hours; it still lands in the feed
//
// Enqueue runs inside the engine's transaction; Deliver runs after commit and
// is best-effort.
type Notifications struct {
	store  domain.Store
	pusher domain.Pusher
	policy domain.NotificationPolicy
	clock  Clock
	log    *zap.Logger
}

// NewNotifications creates a notification service. pusher may be nil.
func NewNotifications(store domain.Store, policy domain.NotificationPolicy, clock Clock, pusher domain.Pusher, log *zap.Logger) *Notifications {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifications{
		store:  store,
		pusher: pusher,
		policy: policy,
		clock:  clock,
		log:    log.Named("notifications"),
	}
}

// Policy returns the current notification policy.
func (n *Notifications) Policy() domain.NotificationPolicy {
	return n.policy
}

// Enqueue stores a notification if policy allows it. The bool is false when
// the notification was suppressed by the daily cap.
func (n *Notifications) Enqueue(ctx context.Context, tx domain.Tx, notif domain.Notification) (domain.Notification, bool, error) {
	if n == nil {
		return notif, false, nil
	}

	today := n.clock.Today()
	if !bypassesCap(notif.Type) {
		existing, err := tx.Query(ctx, domain.CollNotifications,
			domain.Eq("user_id", notif.UserID), domain.Eq("day", today))
		if err != nil {
			return notif, false, fmt.Errorf("count today: %w", err)
		}
		capped := 0
		for _, doc := range existing {
			var prev domain.Notification
			if err := doc.Decode(&prev); err == nil && !bypassesCap(prev.Type) {
				capped++
			}
		}
		if capped >= n.policy.MaxPerDay {
			return notif, false, nil
		}
	}

	notif.ID = uuid.NewString()
	notif.Day = today
	notif.CreatedAt = n.clock.Time()
	notif.Shown = false

	if _, err := tx.Create(ctx, domain.CollNotifications, notif.ID, notif); err != nil {
		return notif, false, fmt.Errorf("insert notification: %w", err)
	}
	return notif, true, nil
}

// Deliver pushes committed notifications to the recipients' devices.
// Failures are logged, never returned.
func (n *Notifications) Deliver(ctx context.Context, notifs []domain.Notification) {
	if n == nil || n.pusher == nil || len(notifs) == 0 {
		return
	}
	if n.isQuietHour(n.clock.Time().In(n.clock.Location)) {
		n.log.Debug("quiet hours, push skipped", zap.Int("count", len(notifs)))
		return
	}

	for _, notif := range notifs {
		tokens, err := n.Devices(ctx, notif.UserID)
		if err != nil {
			n.log.Warn("load device tokens", zap.String("user_id", notif.UserID), zap.Error(err))
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		if err := n.pusher.Push(ctx, tokens, notif); err != nil {
			n.log.Warn("push failed",
				zap.String("user_id", notif.UserID),
				zap.String("type", string(notif.Type)),
				zap.Error(err))
		}
	}
}

// Pending returns unshown notifications, newest first.
func (n *Notifications) Pending(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := n.store.RunTx(ctx, func(tx domain.Tx) error {
		docs, err := tx.Query(ctx, domain.CollNotifications,
			domain.Eq("user_id", userID), domain.Eq("shown", false))
		if err != nil {
			return err
		}
		for i := len(docs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			var notif domain.Notification
			if err := docs[i].Decode(&notif); err != nil {
				return fmt.Errorf("decode notification: %w", err)
			}
			out = append(out, notif)
		}
		return nil
	})
	return out, err
}

// MarkShown marks one of the user's notifications as shown.
func (n *Notifications) MarkShown(ctx context.Context, userID, id string) error {
	return n.store.RunTx(ctx, func(tx domain.Tx) error {
		doc, err := tx.Get(ctx, domain.CollNotifications, id)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.NewError(domain.KindNotFound, "notification not found")
		}
		if err != nil {
			return err
		}
		var notif domain.Notification
		if err := doc.Decode(&notif); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		if notif.UserID != userID {
			return domain.NewError(domain.KindNotFound, "notification not found")
		}
		notif.Shown = true
		return tx.Update(ctx, domain.CollNotifications, id, doc.Version, notif)
	})
}

// RegisterDevice stores a push token for the user. Registering the same token
// again is a no-op.
func (n *Notifications) RegisterDevice(ctx context.Context, userID, token, platform string) (domain.DeviceToken, error) {
	if userID == "" {
		return domain.DeviceToken{}, domain.ErrMissingUser
	}
	if token == "" {
		return domain.DeviceToken{}, domain.Validationf("device token is required")
	}

	var dev domain.DeviceToken
	err := n.store.RunTx(ctx, func(tx domain.Tx) error {
		docs, err := tx.Query(ctx, domain.CollDeviceTokens,
			domain.Eq("user_id", userID), domain.Eq("token", token))
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return docs[0].Decode(&dev)
		}
		dev = domain.DeviceToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			Token:     token,
			Platform:  platform,
			CreatedAt: n.clock.Time(),
		}
		_, err = tx.Create(ctx, domain.CollDeviceTokens, dev.ID, dev)
		return err
	})
	return dev, err
}

// Devices lists the user's registered push tokens.
func (n *Notifications) Devices(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	var out []domain.DeviceToken
	err := n.store.RunTx(ctx, func(tx domain.Tx) error {
		docs, err := tx.Query(ctx, domain.CollDeviceTokens, domain.Eq("user_id", userID))
		if err != nil {
			return err
		}
		for _, doc := range docs {
			var dev domain.DeviceToken
			if err := doc.Decode(&dev); err != nil {
				return fmt.Errorf("decode device token: %w", err)
			}
			out = append(out, dev)
		}
		return nil
	})
	return out, err
}

// isQuietHour returns true if the given time falls within quiet hours.
func (n *Notifications) isQuietHour(t time.Time) bool {
	startHour, startMin := parseHHMM(n.policy.QuietStart)
	endHour, endMin := parseHHMM(n.policy.QuietEnd)

	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes == endMinutes {
		return false
	}
	if startMinutes > endMinutes {
		// Wraps midnight: e.g., 22:00 – 08:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

func bypassesCap(t domain.NotificationType) bool {
	switch t {
	case domain.NotifyNudge, domain.NotifyBuddyInvite, domain.NotifyBuddyAccepted, domain.NotifyBuddyCompleted:
		return true
	}
	return false
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}
