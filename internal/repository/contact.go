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

const contactColumnsSQL = personColumns + `,
	c.is_responder, c.is_dependent, c.incoming_ping_at, c.outgoing_ping_at`

// ContactRepository handles database operations for relationships. Every
// relationship is stored as two rows, one per direction.
type ContactRepository struct {
	db *pgxpool.Pool
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// CreatePair creates both directions of a relationship. The roles given are
// ownerID's view of contactID; the reverse row gets them swapped.
func (r *ContactRepository) CreatePair(ctx context.Context, ownerID, contactID string, isResponder, isDependent bool) error {
	if ownerID == contactID {
		return checkin.ErrSelfRelationship
	}
	if !isResponder && !isDependent {
		return checkin.ErrInvalidRoleState
	}

	query := `
		INSERT INTO contacts (owner_id, contact_id, is_responder, is_dependent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	now := time.Now()
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, ownerID, contactID, isResponder, isDependent, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, query, contactID, ownerID, isDependent, isResponder, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", translate(err))
	}
	return nil
}

// DeletePair removes both directions of a relationship
func (r *ContactRepository) DeletePair(ctx context.Context, ownerID, contactID string) error {
	query := `
		DELETE FROM contacts
		WHERE (owner_id = $1 AND contact_id = $2) OR (owner_id = $2 AND contact_id = $1)
	`
	result, err := r.db.Exec(ctx, query, ownerID, contactID)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete contact: %w", checkin.ErrNotFound)
	}
	return nil
}

// Get retrieves contactID as seen by ownerID
func (r *ContactRepository) Get(ctx context.Context, ownerID, contactID string) (models.Person, error) {
	query := `
		SELECT ` + contactColumnsSQL + `
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.owner_id = $1 AND c.contact_id = $2
	`
	p, err := scanContact(r.db.QueryRow(ctx, query, ownerID, contactID))
	if err != nil {
		return models.Person{}, fmt.Errorf("failed to get contact: %w", translate(err))
	}
	return p, nil
}

// ListByOwner retrieves every contact of ownerID in the order they were added
func (r *ContactRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Person, error) {
	query := `
		SELECT ` + contactColumnsSQL + `
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.owner_id = $1
		ORDER BY c.created_at, u.id
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Person
	for rows.Next() {
		p, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}

// UpdateFields applies a partial update to ownerID's relationship with
// contactID and mirrors it onto the reverse row in the same transaction.
func (r *ContactRepository) UpdateFields(ctx context.Context, ownerID, contactID string, fields models.Fields) error {
	user, contact, err := splitFields(fields)
	if err != nil {
		return err
	}
	if len(user) > 0 {
		return fmt.Errorf("profile fields of another user cannot be changed")
	}
	if len(contact) == 0 {
		return nil
	}
	contact = withStalePingsCleared(contact)

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := updateRow(ctx, tx, ownerID, contactID, contact); err != nil {
			return err
		}
		return updateRow(ctx, tx, contactID, ownerID, mirrored(contact))
	})
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", translate(err))
	}
	return nil
}

func updateRow(ctx context.Context, tx pgx.Tx, ownerID, contactID string, assignments []assignment) error {
	set, args := setClause(assignments, 1)
	query := fmt.Sprintf(
		`UPDATE contacts SET %s WHERE owner_id = $%d AND contact_id = $%d`,
		set, len(args)+1, len(args)+2,
	)
	result, err := tx.Exec(ctx, query, append(args, ownerID, contactID)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return checkin.ErrNotFound
	}
	return nil
}

func scanContact(row pgx.Row) (models.Person, error) {
	var (
		isResponder, isDependent bool
		incoming, outgoing       *time.Time
	)
	p, err := scanPerson(row, &isResponder, &isDependent, &incoming, &outgoing)
	if err != nil {
		return models.Person{}, err
	}
	p.IsResponder = isResponder
	p.IsDependent = isDependent
	p.IncomingPingTimestamp = incoming
	p.HasIncomingPing = incoming != nil
	p.OutgoingPingTimestamp = outgoing
	p.HasOutgoingPing = outgoing != nil
	return p, nil
}
