package medication

import (
	"context"
	"strings"
	"time"
)

// Repository persists medications, their schedules and dose logs. Every
// failure is a *PersistenceError.
type Repository interface {
	CreateMedication(ctx context.Context, m *Medication) error
	UpdateMedication(ctx context.Context, m *Medication) error
	DeleteMedication(ctx context.Context, id string) error
	// GetMedicationByID returns nil, nil when the row does not exist.
	GetMedicationByID(ctx context.Context, id string) (*Medication, error)
	ListMedications(ctx context.Context) ([]*Medication, error)
	SearchMedications(ctx context.Context, query string) ([]*Medication, error)

	CreateSchedule(ctx context.Context, s *Schedule) error
	// GetSchedule returns nil, nil when the row does not exist.
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context, medicationID string) ([]Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]Schedule, error)
	DeleteSchedulesForMedication(ctx context.Context, medicationID string) error
	DeleteSchedule(ctx context.Context, id string) error
	ToggleScheduleActive(ctx context.Context, id string) error

	// GetMedicationWithSchedules returns nil, nil when the medication does not exist.
	GetMedicationWithSchedules(ctx context.Context, id string) (*MedicationWithSchedules, error)
	ListMedicationsWithSchedules(ctx context.Context) ([]*MedicationWithSchedules, error)

	CreateLog(ctx context.Context, l *MedicationLog) error
	ListLogs(ctx context.Context, medicationID string, limit, offset int) ([]*MedicationLog, int, error)
}

// rowReader is the part of Repository the aggregate reads are built from.
type rowReader interface {
	GetMedicationByID(ctx context.Context, id string) (*Medication, error)
	ListMedications(ctx context.Context) ([]*Medication, error)
	ListSchedules(ctx context.Context, medicationID string) ([]Schedule, error)
}

func getWithSchedules(ctx context.Context, r rowReader, id string) (*MedicationWithSchedules, error) {
	m, err := r.GetMedicationByID(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	schedules, err := r.ListSchedules(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MedicationWithSchedules{Medication: *m, Schedules: schedules}, nil
}

// listWithSchedules fails as a whole if any schedule read fails; it never
// returns an aggregate without its schedules.
func listWithSchedules(ctx context.Context, r rowReader) ([]*MedicationWithSchedules, error) {
	meds, err := r.ListMedications(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*MedicationWithSchedules, 0, len(meds))
	for _, m := range meds {
		schedules, err := r.ListSchedules(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &MedicationWithSchedules{Medication: *m, Schedules: schedules})
	}
	return out, nil
}

// now is replaced in tests.
var now = func() int64 { return time.Now().UnixMilli() }

// likePattern builds a contains-pattern for LIKE ... ESCAPE '\'.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func emptySchedules(s []Schedule) []Schedule {
	if s == nil {
		return []Schedule{}
	}
	return s
}
