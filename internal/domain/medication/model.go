package medication

import (
	"strings"
	"time"

	"github.com/pillbox/pillbox/pkg/daytime"
)

type PillShape string

const (
	PillShapeRound   PillShape = "round"
	PillShapeCapsule PillShape = "capsule"
)

type Timing string

const (
	TimingBeforeMeal Timing = "before_meal"
	TimingAfterMeal  Timing = "after_meal"
	TimingWithMeal   Timing = "with_meal"
)

// Label renders the timing for people ("after meal").
func (t Timing) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

type LogStatus string

const (
	LogTaken   LogStatus = "taken"
	LogSkipped LogStatus = "skipped"
	LogMissed  LogStatus = "missed"
)

var (
	validShapes   = map[PillShape]bool{PillShapeRound: true, PillShapeCapsule: true}
	validTimings  = map[Timing]bool{TimingBeforeMeal: true, TimingAfterMeal: true, TimingWithMeal: true}
	validStatuses = map[LogStatus]bool{LogTaken: true, LogSkipped: true, LogMissed: true}
)

// Medication timestamps are epoch milliseconds.
type Medication struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	PillColor string    `json:"pill_color"`
	PillShape PillShape `json:"pill_shape"`
	Quantity  int       `json:"quantity"`
	Timing    Timing    `json:"timing"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// Unit is the dose unit shown in reminders: "pill", "capsules", ...
func (m *Medication) Unit() string {
	unit := "pill"
	if m.PillShape == PillShapeCapsule {
		unit = "capsule"
	}
	if m.Quantity > 1 {
		unit += "s"
	}
	return unit
}

// Schedule is one recurrence rule. DaysOfWeek uses 0 = Sunday .. 6 = Saturday.
type Schedule struct {
	ID           string `json:"id"`
	MedicationID string `json:"medication_id"`
	Time         string `json:"time"`
	DaysOfWeek   []int  `json:"days_of_week"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// DueOn reports whether the schedule is active and t falls on one of its days.
func (s *Schedule) DueOn(t time.Time) bool {
	return s.IsActive && daytime.IsDueOnDay(s.DaysOfWeek, t)
}

// MedicationWithSchedules is a medication and its schedules ordered by time.
type MedicationWithSchedules struct {
	Medication
	Schedules []Schedule `json:"schedules"`
}

// Schedule returns the schedule with the given id, if the medication owns it.
func (m *MedicationWithSchedules) Schedule(id string) (Schedule, bool) {
	for _, s := range m.Schedules {
		if s.ID == id {
			return s, true
		}
	}
	return Schedule{}, false
}

type MedicationLog struct {
	ID            string    `json:"id"`
	MedicationID  string    `json:"medication_id"`
	ScheduleID    string    `json:"schedule_id"`
	TakenAt       int64     `json:"taken_at"`
	ScheduledTime string    `json:"scheduled_time"`
	Status        LogStatus `json:"status"`
}

// MedicationInput holds the mutable medication fields for Add and Update.
type MedicationInput struct {
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	PillColor string    `json:"pill_color"`
	PillShape PillShape `json:"pill_shape"`
	Quantity  int       `json:"quantity"`
	Timing    Timing    `json:"timing"`
}

func (in *MedicationInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if in.Quantity < 1 {
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if !validShapes[in.PillShape] {
		return &ValidationError{Field: "pill_shape", Reason: "must be round or capsule"}
	}
	if !validTimings[in.Timing] {
		return &ValidationError{Field: "timing", Reason: "must be before_meal, after_meal or with_meal"}
	}
	return nil
}

func (in *MedicationInput) apply(m *Medication) {
	m.Name = in.Name
	m.Dosage = in.Dosage
	m.PillColor = in.PillColor
	m.PillShape = in.PillShape
	m.Quantity = in.Quantity
	m.Timing = in.Timing
}

// ScheduleInput is one recurrence rule for Add and Update. A nil IsActive
// means active.
type ScheduleInput struct {
	Time       string `json:"time"`
	DaysOfWeek []int  `json:"days_of_week"`
	IsActive   *bool  `json:"is_active,omitempty"`
}

// Validate checks the time and normalises DaysOfWeek to a sorted set.
func (in *ScheduleInput) Validate() error {
	if _, _, err := daytime.ParseTime(in.Time); err != nil {
		return &ValidationError{Field: "time", Reason: "must be zero-padded 24-hour HH:mm"}
	}
	days, err := normalizeDays(in.DaysOfWeek)
	if err != nil {
		return err
	}
	in.DaysOfWeek = days
	return nil
}

func (in *ScheduleInput) active() bool {
	return in.IsActive == nil || *in.IsActive
}

func normalizeDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, &ValidationError{Field: "days_of_week", Reason: "must not be empty"}
	}
	var seen [7]bool
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, &ValidationError{Field: "days_of_week", Reason: "entries must be between 0 and 6"}
		}
		seen[d] = true
	}
	out := make([]int, 0, len(days))
	for d, ok := range seen {
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// LogInput records a dose event. A zero TakenAt means now.
type LogInput struct {
	ScheduleID    string    `json:"schedule_id"`
	TakenAt       int64     `json:"taken_at"`
	ScheduledTime string    `json:"scheduled_time"`
	Status        LogStatus `json:"status"`
}

func (in *LogInput) Validate() error {
	if in.ScheduleID == "" {
		return &ValidationError{Field: "schedule_id", Reason: "is required"}
	}
	if _, _, err := daytime.ParseTime(in.ScheduledTime); err != nil {
		return &ValidationError{Field: "scheduled_time", Reason: "must be zero-padded 24-hour HH:mm"}
	}
	if !validStatuses[in.Status] {
		return &ValidationError{Field: "status", Reason: "must be taken, skipped or missed"}
	}
	return nil
}
