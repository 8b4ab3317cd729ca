package medication

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pillbox/pillbox/internal/platform/notification"
	"github.com/pillbox/pillbox/pkg/daytime"
)

// Payload keys carried in every reminder's notification data.
const (
	DataMedicationID = "medicationId"
	DataScheduleID   = "scheduleId"
	DataTime         = "time"
)

// Reminders keeps the scheduled notifications congruent with the active
// schedules: one weekly notification per active schedule and day.
type Reminders struct {
	scheduler notification.Scheduler
	templates *notification.TemplateEngine
	logger    zerolog.Logger
}

func NewReminders(scheduler notification.Scheduler, templates *notification.TemplateEngine, logger zerolog.Logger) *Reminders {
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &Reminders{scheduler: scheduler, templates: templates, logger: logger}
}

// ScheduleNotifications registers a weekly notification for every day of
// every active schedule and returns the ids that were accepted. A refused
// registration is logged and skipped.
func (r *Reminders) ScheduleNotifications(ctx context.Context, m *MedicationWithSchedules) []string {
	ids := []string{}
	title, body := r.content(m)

	for _, s := range m.Schedules {
		if !s.IsActive {
			continue
		}

		hour, minute, err := daytime.ParseTime(s.Time)
		if err != nil {
			r.logFailure(&NotificationError{MedicationID: m.ID, ScheduleID: s.ID, Err: err})
			continue
		}

		for _, day := range s.DaysOfWeek {
			weekday, err := daytime.ToPlatformWeekday(day)
			if err != nil {
				r.logFailure(&NotificationError{MedicationID: m.ID, ScheduleID: s.ID, Weekday: weekday, Err: err})
				continue
			}

			id, err := r.scheduler.Schedule(ctx, notification.Request{
				Content: notification.Content{
					Title: title,
					Body:  body,
					Data: map[string]string{
						DataMedicationID: m.ID,
						DataScheduleID:   s.ID,
						DataTime:         s.Time,
					},
				},
				Trigger: notification.Trigger{Weekday: weekday, Hour: hour, Minute: minute, Repeats: true},
			})
			if err != nil {
				r.logFailure(&NotificationError{MedicationID: m.ID, ScheduleID: s.ID, Weekday: weekday, Err: err})
				continue
			}

			r.logger.Debug().
				Str("notification_id", id).
				Str("medication_id", m.ID).
				Str("schedule_id", s.ID).
				Int("weekday", weekday).
				Str("time", s.Time).
				Msg("reminder scheduled")
			ids = append(ids, id)
		}
	}
	return ids
}

// CancelForMedication cancels every notification whose payload names
// medicationID. Only a failure to list notifications is returned.
func (r *Reminders) CancelForMedication(ctx context.Context, medicationID string) error {
	return r.cancelWhere(ctx, DataMedicationID, medicationID)
}

// CancelForSchedule cancels every notification whose payload names scheduleID.
func (r *Reminders) CancelForSchedule(ctx context.Context, scheduleID string) error {
	return r.cancelWhere(ctx, DataScheduleID, scheduleID)
}

// RescheduleForMedication tears down and rebuilds the medication's
// notifications.
func (r *Reminders) RescheduleForMedication(ctx context.Context, m *MedicationWithSchedules) ([]string, error) {
	err := r.CancelForMedication(ctx, m.ID)
	return r.ScheduleNotifications(ctx, m), err
}

// CancelAll removes every outstanding notification.
func (r *Reminders) CancelAll(ctx context.Context) error {
	if err := r.scheduler.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel all notifications: %w", err)
	}
	return nil
}

func (r *Reminders) cancelWhere(ctx context.Context, key, value string) error {
	reqs, err := r.scheduler.List(ctx)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	cancelled := 0
	for _, req := range reqs {
		if req.Content.Data[key] != value {
			continue
		}
		if err := r.scheduler.Cancel(ctx, req.ID); err != nil {
			r.logger.Warn().Err(err).Str("notification_id", req.ID).Msg("failed to cancel reminder")
			continue
		}
		cancelled++
	}

	r.logger.Debug().Str(key, value).Int("cancelled", cancelled).Msg("reminders cancelled")
	return nil
}

func (r *Reminders) content(m *MedicationWithSchedules) (title, body string) {
	title, body, err := r.templates.Render(notification.MedicationReminderTemplate, map[string]string{
		"name":     m.Name,
		"dosage":   m.Dosage,
		"quantity": strconv.Itoa(m.Quantity),
		"unit":     m.Unit(),
		"timing":   m.Timing.Label(),
	})
	if err != nil {
		return "Time for your medication!", m.Name + " - " + m.Dosage
	}
	return title, body
}

func (r *Reminders) logFailure(err *NotificationError) {
	r.logger.Warn().
		Err(err.Err).
		Str("medication_id", err.MedicationID).
		Str("schedule_id", err.ScheduleID).
		Int("weekday", err.Weekday).
		Msg("failed to schedule reminder")
}
