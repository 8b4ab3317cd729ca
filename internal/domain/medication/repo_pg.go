package medication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgRepo struct{ pool *pgxpool.Pool }

// NewPGRepo returns a Repository over PostgreSQL.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) conn(ctx context.Context) queryable {
	return r.pool
}

const pgMedCols = `id, name, dosage, pill_color, pill_shape, quantity, timing, created_at, updated_at`

func (r *pgRepo) CreateMedication(ctx context.Context, m *Medication) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ts := now()
	m.CreatedAt, m.UpdatedAt = ts, ts

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medications (`+pgMedCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Name, m.Dosage, m.PillColor, string(m.PillShape), m.Quantity, string(m.Timing), m.CreatedAt, m.UpdatedAt)
	return persistErr("create medication", err)
}

func (r *pgRepo) UpdateMedication(ctx context.Context, m *Medication) error {
	m.UpdatedAt = now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medications SET name = $2, dosage = $3, pill_color = $4, pill_shape = $5,
			quantity = $6, timing = $7, updated_at = $8
		WHERE id = $1`,
		m.ID, m.Name, m.Dosage, m.PillColor, string(m.PillShape), m.Quantity, string(m.Timing), m.UpdatedAt)
	return persistErr("update medication", requireTag(tag, err))
}

func (r *pgRepo) DeleteMedication(ctx context.Context, id string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medications WHERE id = $1`, id)
	return persistErr("delete medication", err)
}

func (r *pgRepo) GetMedicationByID(ctx context.Context, id string) (*Medication, error) {
	m, err := scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+pgMedCols+` FROM medications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get medication", err)
	}
	return m, nil
}

func (r *pgRepo) ListMedications(ctx context.Context) ([]*Medication, error) {
	return r.queryMedications(ctx, "list medications",
		`SELECT `+pgMedCols+` FROM medications ORDER BY name ASC`)
}

func (r *pgRepo) SearchMedications(ctx context.Context, query string) ([]*Medication, error) {
	return r.queryMedications(ctx, "search medications",
		`SELECT `+pgMedCols+` FROM medications WHERE name ILIKE $1 ESCAPE '\' ORDER BY name ASC`,
		likePattern(query))
}

func (r *pgRepo) queryMedications(ctx context.Context, op, query string, args ...interface{}) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, persistErr(op, err)
		}
		items = append(items, m)
	}
	return items, persistErr(op, rows.Err())
}

const pgSchedCols = `id, medication_id, time, days_of_week, is_active, created_at, updated_at`

func (r *pgRepo) CreateSchedule(ctx context.Context, s *Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	days, err := json.Marshal(s.DaysOfWeek)
	if err != nil {
		return persistErr("create schedule", err)
	}
	ts := now()
	s.CreatedAt, s.UpdatedAt = ts, ts

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO schedules (`+pgSchedCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.MedicationID, s.Time, string(days), s.IsActive, s.CreatedAt, s.UpdatedAt)
	return persistErr("create schedule", err)
}

func (r *pgRepo) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	s, err := scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+pgSchedCols+` FROM schedules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get schedule", err)
	}
	return &s, nil
}

func (r *pgRepo) ListSchedules(ctx context.Context, medicationID string) ([]Schedule, error) {
	return r.querySchedules(ctx, "list schedules",
		`SELECT `+pgSchedCols+` FROM schedules WHERE medication_id = $1 ORDER BY time ASC`, medicationID)
}

func (r *pgRepo) ListActiveSchedules(ctx context.Context) ([]Schedule, error) {
	return r.querySchedules(ctx, "list active schedules",
		`SELECT `+pgSchedCols+` FROM schedules WHERE is_active ORDER BY time ASC`)
}

func (r *pgRepo) querySchedules(ctx context.Context, op, query string, args ...interface{}) ([]Schedule, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	items := []Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, persistErr(op, err)
		}
		items = append(items, s)
	}
	return items, persistErr(op, rows.Err())
}

func (r *pgRepo) DeleteSchedulesForMedication(ctx context.Context, medicationID string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedules WHERE medication_id = $1`, medicationID)
	return persistErr("delete schedules", err)
}

func (r *pgRepo) DeleteSchedule(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	return persistErr("delete schedule", requireTag(tag, err))
}

func (r *pgRepo) ToggleScheduleActive(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE schedules SET is_active = NOT is_active, updated_at = $2 WHERE id = $1`, id, now())
	return persistErr("toggle schedule", requireTag(tag, err))
}

func (r *pgRepo) GetMedicationWithSchedules(ctx context.Context, id string) (*MedicationWithSchedules, error) {
	return getWithSchedules(ctx, r, id)
}

func (r *pgRepo) ListMedicationsWithSchedules(ctx context.Context) ([]*MedicationWithSchedules, error) {
	return listWithSchedules(ctx, r)
}

func (r *pgRepo) CreateLog(ctx context.Context, l *MedicationLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_logs (id, medication_id, schedule_id, taken_at, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.MedicationID, l.ScheduleID, l.TakenAt, l.ScheduledTime, string(l.Status))
	return persistErr("create log", err)
}

func (r *pgRepo) ListLogs(ctx context.Context, medicationID string, limit, offset int) ([]*MedicationLog, int, error) {
	const op = "list logs"
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medication_logs WHERE medication_id = $1`, medicationID).Scan(&total); err != nil {
		return nil, 0, persistErr(op, err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medication_id, schedule_id, taken_at, scheduled_time, status
		FROM medication_logs WHERE medication_id = $1
		ORDER BY taken_at DESC LIMIT $2 OFFSET $3`, medicationID, limit, offset)
	if err != nil {
		return nil, 0, persistErr(op, err)
	}
	defer rows.Close()

	var items []*MedicationLog
	for rows.Next() {
		var l MedicationLog
		if err := rows.Scan(&l.ID, &l.MedicationID, &l.ScheduleID, &l.TakenAt, &l.ScheduledTime, &l.Status); err != nil {
			return nil, 0, persistErr(op, fmt.Errorf("scan log: %w", err))
		}
		items = append(items, &l)
	}
	return items, total, persistErr(op, rows.Err())
}

func requireTag(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
