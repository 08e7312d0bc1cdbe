// Package push delivers engine notifications to user devices.
package push

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/willpower-app/willpower/internal/domain"
)

// CredentialsEnv holds a base64-encoded service account JSON. When set it
// takes precedence over the credentials file.
const CredentialsEnv = "WILLPOWER_FCM_CREDENTIALS"

// FCM pushes notifications through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
	log    *zap.Logger
}

// NewFCM initializes a Firebase messaging client from CredentialsEnv or,
// failing that, from credentialsFile.
func NewFCM(ctx context.Context, credentialsFile string, log *zap.Logger) (*FCM, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("push")

	var opt option.ClientOption
	if encoded := os.Getenv(CredentialsEnv); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", CredentialsEnv, err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Info("fcm credentials from environment")
	} else {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("fcm credentials file %q: %w", credentialsFile, err)
		}
		opt = option.WithCredentialsFile(credentialsFile)
		log.Info("fcm credentials from file", zap.String("path", credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &FCM{client: client, log: log}, nil
}

// Push sends n to each token individually. It fails only when every send
// failed.
func (f *FCM) Push(ctx context.Context, tokens []domain.DeviceToken, n domain.Notification) error {
	if len(tokens) == 0 {
		return nil
	}

	sent, failed := 0, 0
	for _, tok := range tokens {
		if _, err := f.client.Send(ctx, Message(tok, n)); err != nil {
			f.log.Debug("fcm send failed",
				zap.String("user_id", n.UserID),
				zap.String("device_id", tok.ID),
				zap.Error(err))
			failed++
			continue
		}
		sent++
	}

	f.log.Debug("fcm batch", zap.Int("sent", sent), zap.Int("failed", failed))
	if sent == 0 && failed > 0 {
		return fmt.Errorf("all %d push sends failed", failed)
	}
	return nil
}

// Message builds the FCM message for one device.
func Message(tok domain.DeviceToken, n domain.Notification) *messaging.Message {
	data := make(map[string]string, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	data["notification_id"] = n.ID
	data["type"] = string(n.Type)

	msg := &messaging.Message{
		Token: tok.Token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
	}
	switch tok.Platform {
	case "ios":
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	default:
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		}
	}
	return msg
}

var _ domain.Pusher = (*FCM)(nil)
