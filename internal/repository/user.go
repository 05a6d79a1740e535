package repository

import (
	"context"
	"fmt"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const personColumns = `
	u.id, u.name, u.phone_number, u.note, u.last_checked_in, u.check_in_interval_seconds,
	u.manual_alert_active, u.manual_alert_at,
	u.notify_30min_before, u.notify_2hours_before, u.notifications_enabled`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user together with their initial record
func (r *UserRepository) Create(ctx context.Context, user *models.User, p models.Person) error {
	query := `
		INSERT INTO users (
			id, code, name, phone_number, note, last_checked_in, check_in_interval_seconds,
			notify_30min_before, notify_2hours_before, notifications_enabled, push_token, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Code, p.Name, p.PhoneNumber, p.Note, p.LastCheckedIn,
		int64(p.CheckInInterval/time.Second),
		p.Notify30MinBefore, p.Notify2HoursBefore, p.NotificationsEnabled,
		user.PushToken, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, code, push_token, avatar_key, created_at
		FROM users
		WHERE id = $1
	`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translate(err))
	}
	return user, nil
}

// GetByCode retrieves a user by their QR code
func (r *UserRepository) GetByCode(ctx context.Context, code string) (*models.User, error) {
	query := `
		SELECT id, code, push_token, avatar_key, created_at
		FROM users
		WHERE code = $1
	`
	user, err := scanUser(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by code: %w", translate(err))
	}
	return user, nil
}

// CodeExists checks if a code already exists
func (r *UserRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE code = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}
	return exists, nil
}

// UpdateCode replaces the user's QR code
func (r *UserRepository) UpdateCode(ctx context.Context, userID, code string) error {
	query := `UPDATE users SET code = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "update code", query, code, userID)
}

// GetPerson retrieves the user's own record
func (r *UserRepository) GetPerson(ctx context.Context, id string) (models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM users u WHERE u.id = $1`
	p, err := scanPerson(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return models.Person{}, fmt.Errorf("failed to get person: %w", translate(err))
	}
	return p, nil
}

// UpdateFields applies a partial update to the user's own record
func (r *UserRepository) UpdateFields(ctx context.Context, id string, fields models.Fields) error {
	user, contact, err := splitFields(fields)
	if err != nil {
		return err
	}
	if len(contact) > 0 {
		return fmt.Errorf("relationship fields cannot be set on a user record")
	}
	if len(user) == 0 {
		return nil
	}

	set, args := setClause(user, 1)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, set, len(args)+1)
	return r.execOne(ctx, "update user", query, append(args, id)...)
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	query := `UPDATE users SET push_token = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "update push token", query, pushToken, userID)
}

// UpdateAvatarKey records the storage key of the user's avatar
func (r *UserRepository) UpdateAvatarKey(ctx context.Context, userID, key string) error {
	query := `UPDATE users SET avatar_key = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "update avatar key", query, key, userID)
}

// PushToken returns the user's push token, or nil if they have none
func (r *UserRepository) PushToken(ctx context.Context, userID string) (*string, error) {
	query := `SELECT push_token FROM users WHERE id = $1`
	var token *string
	if err := r.db.QueryRow(ctx, query, userID).Scan(&token); err != nil {
		return nil, fmt.Errorf("failed to get push token: %w", translate(err))
	}
	return token, nil
}

// ContactOwners returns the users that have userID as a contact
func (r *UserRepository) ContactOwners(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT owner_id FROM contacts WHERE contact_id = $1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact owners: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan contact owners: %w", err)
	}
	return owners, nil
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, translate(err))
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to %s: user %w", op, checkin.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Code, &user.PushToken, &user.AvatarKey, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanPerson(row pgx.Row, extra ...interface{}) (models.Person, error) {
	var (
		p        models.Person
		interval int64
	)
	dest := []interface{}{
		&p.ID, &p.Name, &p.PhoneNumber, &p.Note, &p.LastCheckedIn, &interval,
		&p.ManualAlertActive, &p.ManualAlertTimestamp,
		&p.Notify30MinBefore, &p.Notify2HoursBefore, &p.NotificationsEnabled,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.Person{}, err
	}
	p.CheckInInterval = time.Duration(interval) * time.Second
	return p, nil
}
