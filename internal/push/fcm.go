package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// FCMProvider sends notifications through Firebase Cloud Messaging
type FCMProvider struct {
	client *messaging.Client
}

// NewFCMProvider creates a provider from an initialized Firebase app
func NewFCMProvider(ctx context.Context, app *firebase.App) (*FCMProvider, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

// Send pushes msg to a single device
func (f *FCMProvider) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoToken
	}
	if _, err := f.client.Send(ctx, buildMessage(msg)); err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}

func buildMessage(msg Message) *messaging.Message {
	return &messaging.Message{
		Token: msg.Token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:    "default",
					Category: msg.Category,
				},
			},
		},
	}
}
