package notify

import (
	"context"
	"encoding/base64"
	"errors"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// PushPresenter mirrors the alert to a phone through Firebase Cloud Messaging
type PushPresenter struct {
	FirebaseApp *firebase.App
	Token       string
}

func NewPushPresenter(ctx context.Context, serviceAccountKey string, token string) (*PushPresenter, error) {
	if token == "" {
		return nil, errors.New("no push token configured")
	}

	decodedKey, err := base64.StdEncoding.DecodeString(serviceAccountKey)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithCredentialsJSON(decodedKey)}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}

	return &PushPresenter{
		FirebaseApp: app,
		Token:       token,
	}, nil
}

func alertMessage(token string, alert Alert) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Data: map[string]string{
			"action":  "ring",
			"alarmId": alert.AlarmID,
			"stop":    alert.StopAction,
		},
		Notification: &messaging.Notification{
			Title: alert.Title,
			Body:  alert.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "departure-alarm",
				Sticky:    true,
				Priority:  messaging.PriorityMax,
				Tag:       alert.AlarmID,
			},
		},
	}
}

func withdrawMessage(token string, alarmID string) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Data: map[string]string{
			"action":  "stop",
			"alarmId": alarmID,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

func (p *PushPresenter) send(ctx context.Context, message *messaging.Message) error {
	fcmClient, err := p.FirebaseApp.Messaging(ctx)
	if err != nil {
		return err
	}

	_, err = fcmClient.Send(ctx, message)
	return err
}

func (p *PushPresenter) Present(ctx context.Context, alert Alert) error {
	if err := p.send(ctx, alertMessage(p.Token, alert)); err != nil {
		return err
	}

	log.Info().Str("alarm", alert.AlarmID).Msg("Sent Push Notification")

	return nil
}

func (p *PushPresenter) Withdraw(ctx context.Context, alarmID string) error {
	return p.send(ctx, withdrawMessage(p.Token, alarmID))
}
