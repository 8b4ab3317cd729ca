package medication

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// sqlHandle hands out the process-wide embedded database, opening it on
// first use.
type sqlHandle interface {
	DB(ctx context.Context) (*sql.DB, error)
}

type sqliteRepo struct {
	h sqlHandle
}

// NewSQLiteRepo returns a Repository over the embedded SQLite database.
func NewSQLiteRepo(h sqlHandle) Repository {
	return &sqliteRepo{h: h}
}

func (r *sqliteRepo) conn(ctx context.Context, op string) (*sql.DB, error) {
	db, err := r.h.DB(ctx)
	if err != nil {
		return nil, persistErr(op, err)
	}
	return db, nil
}

const sqliteMedCols = `id, name, dosage, pill_color, pill_shape, quantity, timing, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMedication(row scanner) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.Dosage, &m.PillColor, &m.PillShape,
		&m.Quantity, &m.Timing, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *sqliteRepo) CreateMedication(ctx context.Context, m *Medication) error {
	const op = "create medication"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ts := now()
	m.CreatedAt, m.UpdatedAt = ts, ts

	_, err = db.ExecContext(ctx, `
		INSERT INTO medications (`+sqliteMedCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Dosage, m.PillColor, m.PillShape, m.Quantity, m.Timing, m.CreatedAt, m.UpdatedAt)
	return persistErr(op, err)
}

func (r *sqliteRepo) UpdateMedication(ctx context.Context, m *Medication) error {
	const op = "update medication"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := db.ExecContext(ctx, `
		UPDATE medications SET name = ?, dosage = ?, pill_color = ?, pill_shape = ?,
			quantity = ?, timing = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Dosage, m.PillColor, m.PillShape, m.Quantity, m.Timing, m.UpdatedAt, m.ID)
	return persistErr(op, requireRow(res, err))
}

func (r *sqliteRepo) DeleteMedication(ctx context.Context, id string) error {
	const op = "delete medication"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM medications WHERE id = ?`, id)
	return persistErr(op, err)
}

func (r *sqliteRepo) GetMedicationByID(ctx context.Context, id string) (*Medication, error) {
	const op = "get medication"
	db, err := r.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	m, err := scanMedication(db.QueryRowContext(ctx, `SELECT `+sqliteMedCols+` FROM medications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr(op, err)
	}
	return m, nil
}

func (r *sqliteRepo) ListMedications(ctx context.Context) ([]*Medication, error) {
	return r.queryMedications(ctx, "list medications",
		`SELECT `+sqliteMedCols+` FROM medications ORDER BY name ASC`)
}

func (r *sqliteRepo) SearchMedications(ctx context.Context, query string) ([]*Medication, error) {
	return r.queryMedications(ctx, "search medications",
		`SELECT `+sqliteMedCols+` FROM medications WHERE name LIKE ? ESCAPE '\' ORDER BY name ASC`,
		likePattern(query))
}

func (r *sqliteRepo) queryMedications(ctx context.Context, op, query string, args ...interface{}) ([]*Medication, error) {
	db, err := r.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
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

const sqliteSchedCols = `id, medication_id, time, days_of_week, is_active, created_at, updated_at`

func scanSchedule(row scanner) (Schedule, error) {
	var s Schedule
	var days string
	if err := row.Scan(&s.ID, &s.MedicationID, &s.Time, &days, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(days), &s.DaysOfWeek); err != nil {
		return s, fmt.Errorf("decode days_of_week of schedule %s: %w", s.ID, err)
	}
	return s, nil
}

func (r *sqliteRepo) CreateSchedule(ctx context.Context, s *Schedule) error {
	const op = "create schedule"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	days, err := json.Marshal(s.DaysOfWeek)
	if err != nil {
		return persistErr(op, err)
	}
	ts := now()
	s.CreatedAt, s.UpdatedAt = ts, ts

	_, err = db.ExecContext(ctx, `
		INSERT INTO schedules (`+sqliteSchedCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.MedicationID, s.Time, string(days), s.IsActive, s.CreatedAt, s.UpdatedAt)
	return persistErr(op, err)
}

func (r *sqliteRepo) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	const op = "get schedule"
	db, err := r.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	s, err := scanSchedule(db.QueryRowContext(ctx, `SELECT `+sqliteSchedCols+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr(op, err)
	}
	return &s, nil
}

func (r *sqliteRepo) ListSchedules(ctx context.Context, medicationID string) ([]Schedule, error) {
	return r.querySchedules(ctx, "list schedules",
		`SELECT `+sqliteSchedCols+` FROM schedules WHERE medication_id = ? ORDER BY time ASC`, medicationID)
}

func (r *sqliteRepo) ListActiveSchedules(ctx context.Context) ([]Schedule, error) {
	return r.querySchedules(ctx, "list active schedules",
		`SELECT `+sqliteSchedCols+` FROM schedules WHERE is_active = 1 ORDER BY time ASC`)
}

func (r *sqliteRepo) querySchedules(ctx context.Context, op, query string, args ...interface{}) ([]Schedule, error) {
	db, err := r.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
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

func (r *sqliteRepo) DeleteSchedulesForMedication(ctx context.Context, medicationID string) error {
	const op = "delete schedules"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM schedules WHERE medication_id = ?`, medicationID)
	return persistErr(op, err)
}

func (r *sqliteRepo) DeleteSchedule(ctx context.Context, id string) error {
	const op = "delete schedule"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	return persistErr(op, requireRow(res, err))
}

// ToggleScheduleActive flips is_active in a single statement.
func (r *sqliteRepo) ToggleScheduleActive(ctx context.Context, id string) error {
	const op = "toggle schedule"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE schedules
		SET is_active = CASE WHEN is_active = 1 THEN 0 ELSE 1 END, updated_at = ?
		WHERE id = ?`, now(), id)
	return persistErr(op, requireRow(res, err))
}

func (r *sqliteRepo) GetMedicationWithSchedules(ctx context.Context, id string) (*MedicationWithSchedules, error) {
	return getWithSchedules(ctx, r, id)
}

func (r *sqliteRepo) ListMedicationsWithSchedules(ctx context.Context) ([]*MedicationWithSchedules, error) {
	return listWithSchedules(ctx, r)
}

func (r *sqliteRepo) CreateLog(ctx context.Context, l *MedicationLog) error {
	const op = "create log"
	db, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO medication_logs (id, medication_id, schedule_id, taken_at, scheduled_time, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.MedicationID, l.ScheduleID, l.TakenAt, l.ScheduledTime, l.Status)
	return persistErr(op, err)
}

func (r *sqliteRepo) ListLogs(ctx context.Context, medicationID string, limit, offset int) ([]*MedicationLog, int, error) {
	const op = "list logs"
	db, err := r.conn(ctx, op)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM medication_logs WHERE medication_id = ?`, medicationID).Scan(&total); err != nil {
		return nil, 0, persistErr(op, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, medication_id, schedule_id, taken_at, scheduled_time, status
		FROM medication_logs WHERE medication_id = ?
		ORDER BY taken_at DESC LIMIT ? OFFSET ?`, medicationID, limit, offset)
	if err != nil {
		return nil, 0, persistErr(op, err)
	}
	defer rows.Close()

	var items []*MedicationLog
	for rows.Next() {
		var l MedicationLog
		if err := rows.Scan(&l.ID, &l.MedicationID, &l.ScheduleID, &l.TakenAt, &l.ScheduledTime, &l.Status); err != nil {
			return nil, 0, persistErr(op, err)
		}
		items = append(items, &l)
	}
	return items, total, persistErr(op, rows.Err())
}

// requireRow turns an update or delete that matched nothing into ErrNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
