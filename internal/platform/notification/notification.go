// Package notification is the local notification primitive: weekly calendar
// triggers that are persisted on-device, armed as cron entries and delivered
// when they fire.
package notification

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidTrigger is returned when a request's trigger cannot be armed.
var ErrInvalidTrigger = errors.New("invalid notification trigger")

// Content is what the user sees when a notification fires. Data is carried
// opaquely so that callers can find their notifications again.
type Content struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Trigger fires on Weekday (1 = Sunday .. 7 = Saturday) at Hour:Minute.
type Trigger struct {
	Weekday int  `json:"weekday"`
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
	Repeats bool `json:"repeats"`
}

// Validate checks the trigger ranges.
func (t Trigger) Validate() error {
	if t.Weekday < 1 || t.Weekday > 7 {
		return fmt.Errorf("%w: weekday %d out of range 1..7", ErrInvalidTrigger, t.Weekday)
	}
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range 0..23", ErrInvalidTrigger, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range 0..59", ErrInvalidTrigger, t.Minute)
	}
	return nil
}

// CronSpec returns the five-field cron expression for the trigger. Cron
// counts weekdays from 0 = Sunday.
func (t Trigger) CronSpec() string {
	return fmt.Sprintf("%d %d * * %d", t.Minute, t.Hour, t.Weekday-1)
}

// Request is a single registered notification.
type Request struct {
	ID      string  `json:"id"`
	Content Content `json:"content"`
	Trigger Trigger `json:"trigger"`
}

// Scheduler registers and cancels notifications.
type Scheduler interface {
	// Schedule registers req and returns its id. An empty req.ID is assigned.
	Schedule(ctx context.Context, req Request) (string, error)
	// Cancel removes a notification. Unknown ids are ignored.
	Cancel(ctx context.Context, id string) error
	// List returns every outstanding notification.
	List(ctx context.Context) ([]Request, error)
	// CancelAll removes every outstanding notification.
	CancelAll(ctx context.Context) error
}

// Deliverer presents fired notification content to the user.
type Deliverer interface {
	Deliver(ctx context.Context, content Content) error
}

// Gate decides at fire time whether a notification is presented at all.
type Gate interface {
	AllowDelivery(ctx context.Context) bool
}
