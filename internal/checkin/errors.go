package checkin

import "errors"

// Errors returned by check-in operations and the layers that sync them.
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateContact  = errors.New("contact already exists")
	ErrAlreadyExists     = errors.New("relationship already exists")
	ErrInvalidRoleState  = errors.New("contact must be a responder, a dependent, or both")
	ErrInvalidInterval   = errors.New("check-in interval must be positive")
	ErrSelfRelationship  = errors.New("cannot add yourself as a contact")
	ErrSyncFailure       = errors.New("sync failed")
	ErrInvalidIdentifier = errors.New("invalid contact code")
)

var taxonomy = []error{
	ErrNotAuthenticated,
	ErrNotFound,
	ErrDuplicateContact,
	ErrAlreadyExists,
	ErrInvalidRoleState,
	ErrInvalidInterval,
	ErrSelfRelationship,
	ErrSyncFailure,
	ErrInvalidIdentifier,
}

// AsSyncFailure leaves domain errors untouched and marks everything else as a
// retryable sync failure.
func AsSyncFailure(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	return errors.Join(ErrSyncFailure, err)
}

// Retryable reports whether re-issuing the operation may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrSyncFailure)
}

// UserMessage returns a short message suitable for display next to a retry button.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in again."
	case errors.Is(err, ErrNotFound):
		return "That contact could not be found."
	case errors.Is(err, ErrDuplicateContact), errors.Is(err, ErrAlreadyExists):
		return "This person is already one of your contacts."
	case errors.Is(err, ErrInvalidRoleState):
		return "Choose responder, dependent, or both."
	case errors.Is(err, ErrInvalidInterval):
		return "Pick a check-in interval longer than zero."
	case errors.Is(err, ErrSelfRelationship):
		return "You can't add yourself as a contact."
	case errors.Is(err, ErrInvalidIdentifier):
		return "That QR code isn't valid."
	case errors.Is(err, ErrSyncFailure):
		return "Couldn't reach the server. Try again."
	default:
		return "Something went wrong. Try again."
	}
}
