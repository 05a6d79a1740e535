// Package push delivers notifications to devices.
package push

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNoToken is returned when a message has no device token.
var ErrNoToken = errors.New("no device token")

// Message is a single notification to one device
type Message struct {
	Token    string
	Title    string
	Body     string
	Category string
	Data     map[string]string
}

// Sender delivers messages to a push provider
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NopSender logs messages instead of sending them
type NopSender struct{}

// Send logs the message
func (NopSender) Send(_ context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoToken
	}
	log.Debug().
		Str("category", msg.Category).
		Str("title", msg.Title).
		Msg("Push delivery disabled, dropping message")
	return nil
}
