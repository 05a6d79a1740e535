// Package reminders stores check-in reminders in Redis and delivers them as
// push notifications when they fall due.
package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/push"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	dueKey     = "reminders:due"
	payloadKey = "reminders:payload"
)

// Reminder is a pending notification ahead of a check-in expiration
type Reminder struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Expiration time.Time     `json:"expiration"`
	Lead       time.Duration `json:"lead"`
}

// FireAt is when the reminder is due
func (r Reminder) FireAt() time.Time {
	return r.Expiration.Add(-r.Lead)
}

// TokenSource looks up a user's push token
type TokenSource interface {
	PushToken(ctx context.Context, userID string) (*string, error)
}

// Scheduler keeps reminders in a sorted set scored by fire time, with the
// reminder bodies in a hash keyed by reminder id.
type Scheduler struct {
	rdb    *redis.Client
	sender push.Sender
	tokens TokenSource
	log    zerolog.Logger
}

// NewScheduler creates a new reminder scheduler
func NewScheduler(rdb *redis.Client, sender push.Sender, tokens TokenSource, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		rdb:    rdb,
		sender: sender,
		tokens: tokens,
		log:    logger,
	}
}

// ScheduleReminder stores a reminder lead before expiration. A reminder with
// the same user and lead is replaced.
func (s *Scheduler) ScheduleReminder(ctx context.Context, userID string, expiration time.Time, lead time.Duration) error {
	r := Reminder{
		ID:         checkin.ReminderID(userID, lead),
		UserID:     userID,
		Expiration: expiration,
		Lead:       lead,
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, payloadKey, r.ID, data)
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(r.FireAt().Unix()), Member: r.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}
	return nil
}

// CancelReminders removes pending reminders. Unknown ids are ignored.
func (s *Scheduler) CancelReminders(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, dueKey, members...)
		pipe.HDel(ctx, payloadKey, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cancel reminders: %w", err)
	}
	return nil
}

// ShowLocalNotification sends a notification to the user's device right away
func (s *Scheduler) ShowLocalNotification(ctx context.Context, userID, title, body string) error {
	_, err := s.deliver(ctx, userID, push.Message{
		Title:    title,
		Body:     body,
		Category: "status",
		Data:     map[string]string{"user_id": userID},
	})
	return err
}

// Get returns a pending reminder
func (s *Scheduler) Get(ctx context.Context, id string) (Reminder, bool, error) {
	data, err := s.rdb.HGet(ctx, payloadKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return Reminder{}, false, nil
	}
	if err != nil {
		return Reminder{}, false, fmt.Errorf("failed to get reminder: %w", err)
	}
	var r Reminder
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return Reminder{}, false, fmt.Errorf("failed to unmarshal reminder: %w", err)
	}
	return r, true, nil
}

// Due returns the reminders whose fire time is at or before now
func (s *Scheduler) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get due reminders: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.rdb.HMGet(ctx, payloadKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder payloads: %w", err)
	}

	reminders := make([]Reminder, 0, len(ids))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// payload gone, only the index entry is left
			reminders = append(reminders, Reminder{ID: ids[i]})
			continue
		}
		var r Reminder
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.log.Warn().Err(err).Str("reminder_id", ids[i]).Msg("Dropping malformed reminder")
			reminders = append(reminders, Reminder{ID: ids[i]})
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

// DispatchDue delivers every reminder due at now and removes it. Each reminder
// is claimed before delivery so that concurrent dispatchers send it once.
func (s *Scheduler) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		claimed, err := s.rdb.ZRem(ctx, dueKey, r.ID).Result()
		if err != nil {
			return sent, fmt.Errorf("failed to claim reminder: %w", err)
		}
		if claimed == 0 {
			continue
		}
		if err := s.rdb.HDel(ctx, payloadKey, r.ID).Err(); err != nil {
			s.log.Warn().Err(err).Str("reminder_id", r.ID).Msg("Failed to delete reminder payload")
		}
		if r.UserID == "" {
			continue
		}

		delivered, err := s.deliver(ctx, r.UserID, push.Message{
			Title:    "Time to check in",
			Body:     fmt.Sprintf("Your check-in expires in %s.", checkin.FormatRemaining(r.Expiration.Sub(now))),
			Category: "reminder",
			Data:     map[string]string{"user_id": r.UserID, "reminder_id": r.ID},
		})
		if err != nil {
			s.log.Error().Err(err).Str("reminder_id", r.ID).Msg("Failed to deliver reminder")
			continue
		}
		if delivered {
			sent++
		}
	}
	return sent, nil
}

// Run dispatches due reminders every interval until ctx is done
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("Reminder dispatcher started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Reminder dispatcher stopped")
			return
		case now := <-ticker.C:
			sent, err := s.DispatchDue(ctx, now)
			if err != nil {
				s.log.Error().Err(err).Msg("Failed to dispatch reminders")
				continue
			}
			if sent > 0 {
				s.log.Info().Int("sent", sent).Msg("Reminders dispatched")
			}
		}
	}
}

// deliver reports false without error when the user has no device registered.
func (s *Scheduler) deliver(ctx context.Context, userID string, msg push.Message) (bool, error) {
	token, err := s.tokens.PushToken(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to look up push token: %w", err)
	}
	if token == nil || *token == "" {
		s.log.Debug().Str("user_id", userID).Msg("No push token, skipping notification")
		return false, nil
	}
	msg.Token = *token
	if err := s.sender.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}
