package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNSProvider sends notifications through Apple Push Notification service
type APNSProvider struct {
	client *apns2.Client
	topic  string
}

// NewAPNSProvider creates a provider authenticated with a .p8 signing key
func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth key: %w", err)
	}

	tokenProvider := &token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	}

	client := apns2.NewTokenClient(tokenProvider)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{
		client: client,
		topic:  topic,
	}, nil
}

// Send pushes msg to a single device
func (a *APNSProvider) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoToken
	}

	response, err := a.client.PushWithContext(ctx, a.buildNotification(msg))
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !response.Sent() {
		return fmt.Errorf("APNS error: %d %s", response.StatusCode, response.Reason)
	}
	return nil
}

func (a *APNSProvider) buildNotification(msg Message) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound("default")
	if msg.Category != "" {
		p = p.Category(msg.Category)
	}
	for k, v := range msg.Data {
		p = p.Custom(k, v)
	}

	return &apns2.Notification{
		DeviceToken: msg.Token,
		Topic:       a.topic,
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
		Payload:     p,
	}
}
