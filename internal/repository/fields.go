package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// userColumns maps the updatable user fields to their columns.
var userColumns = map[string]string{
	models.FieldName:                 "name",
	models.FieldPhoneNumber:          "phone_number",
	models.FieldNote:                 "note",
	models.FieldLastCheckedIn:        "last_checked_in",
	models.FieldCheckInInterval:      "check_in_interval_seconds",
	models.FieldManualAlertActive:    "manual_alert_active",
	models.FieldManualAlertTimestamp: "manual_alert_at",
	models.FieldNotify30MinBefore:    "notify_30min_before",
	models.FieldNotify2HoursBefore:   "notify_2hours_before",
	models.FieldNotificationsEnabled: "notifications_enabled",
}

// contactColumns maps the updatable relationship fields to their columns.
var contactColumns = map[string]string{
	models.FieldIsResponder:  "is_responder",
	models.FieldIsDependent:  "is_dependent",
	models.FieldIncomingPing: "incoming_ping_at",
	models.FieldOutgoingPing: "outgoing_ping_at",
}

// mirrorColumns maps a relationship column to the column holding the same fact
// on the reverse row: my responder is someone whose dependent I am, and my
// outgoing ping is their incoming one.
var mirrorColumns = map[string]string{
	"is_responder":     "is_dependent",
	"is_dependent":     "is_responder",
	"incoming_ping_at": "outgoing_ping_at",
	"outgoing_ping_at": "incoming_ping_at",
}

type assignment struct {
	column string
	value  interface{}
}

// splitFields separates fields into user columns and relationship columns.
// Unknown field names are rejected.
func splitFields(fields models.Fields) (user, contact []assignment, err error) {
	for _, name := range sortedNames(fields) {
		value, err := columnValue(name, fields[name])
		if err != nil {
			return nil, nil, err
		}
		if col, ok := userColumns[name]; ok {
			user = append(user, assignment{column: col, value: value})
			continue
		}
		if col, ok := contactColumns[name]; ok {
			contact = append(contact, assignment{column: col, value: value})
			continue
		}
		return nil, nil, fmt.Errorf("unknown field %q", name)
	}
	return user, contact, nil
}

// pingForRole names the ping column that only exists while a role is held.
var pingForRole = map[string]string{
	"is_responder": "incoming_ping_at",
	"is_dependent": "outgoing_ping_at",
}

// withStalePingsCleared adds a NULL assignment for the ping column of every
// role being dropped, unless the caller already set it. The result stays
// sorted by column.
func withStalePingsCleared(assignments []assignment) []assignment {
	set := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		set[a.column] = true
	}
	out := append([]assignment(nil), assignments...)
	for _, a := range assignments {
		ping, ok := pingForRole[a.column]
		if !ok || set[ping] {
			continue
		}
		if held, ok := a.value.(bool); ok && !held {
			out = append(out, assignment{column: ping, value: (*time.Time)(nil)})
			set[ping] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].column < out[j].column })
	return out
}

// mirrored returns the assignments as they apply to the reverse row.
func mirrored(assignments []assignment) []assignment {
	out := make([]assignment, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, assignment{column: mirrorColumns[a.column], value: a.value})
	}
	return out
}

// setClause renders "col = $n, ..." starting at placeholder start, always
// touching updated_at.
func setClause(assignments []assignment, start int) (string, []interface{}) {
	parts := make([]string, 0, len(assignments)+1)
	args := make([]interface{}, 0, len(assignments))
	for i, a := range assignments {
		parts = append(parts, fmt.Sprintf("%s = $%d", a.column, start+i))
		args = append(args, a.value)
	}
	parts = append(parts, "updated_at = NOW()")
	return strings.Join(parts, ", "), args
}

func columnValue(name string, value interface{}) (interface{}, error) {
	if name != models.FieldCheckInInterval {
		return value, nil
	}
	d, ok := value.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("field %q must be a duration, got %T", name, value)
	}
	if d <= 0 {
		return nil, checkin.ErrInvalidInterval
	}
	return int64(d / time.Second), nil
}

func sortedNames(fields models.Fields) []string {
	names := fields.Names()
	sort.Strings(names)
	return names
}

// translate maps driver errors onto the domain taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", checkin.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %w", checkin.ErrAlreadyExists, err)
	case foreignKeyViolation:
		return fmt.Errorf("%w: %w", checkin.ErrNotFound, err)
	case checkViolation:
		return fmt.Errorf("%w: %w", checkin.ErrInvalidRoleState, err)
	default:
		return err
	}
}
