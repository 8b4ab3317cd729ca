package medication

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by PersistenceError when an update, toggle or
// schedule delete matches no row.
var ErrNotFound = errors.New("not found")

// ValidationError is malformed input rejected before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// PersistenceError is a failed storage operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// NotificationError is a single reminder the notification scheduler refused.
// It is logged where it happens and never returned.
type NotificationError struct {
	MedicationID string
	ScheduleID   string
	Weekday      int
	Err          error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("schedule reminder for medication %s schedule %s weekday %d: %v",
		e.MedicationID, e.ScheduleID, e.Weekday, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
