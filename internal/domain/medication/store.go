package medication

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier is the reminder synchronisation the Store drives after writes.
type Notifier interface {
	ScheduleNotifications(ctx context.Context, m *MedicationWithSchedules) []string
	CancelForMedication(ctx context.Context, medicationID string) error
	CancelForSchedule(ctx context.Context, scheduleID string) error
	RescheduleForMedication(ctx context.Context, m *MedicationWithSchedules) ([]string, error)
	CancelAll(ctx context.Context) error
}

// Snapshot is the state read by the UI layer.
type Snapshot struct {
	Medications []*MedicationWithSchedules `json:"medications"`
	Loading     bool                       `json:"loading"`
	Err         string                     `json:"error,omitempty"`
}

// DueItem is one schedule due at a given time of day.
type DueItem struct {
	Medication *MedicationWithSchedules `json:"medication"`
	Schedule   Schedule                 `json:"schedule"`
}

// TimeGroup buckets the items due at Time ("HH:mm").
type TimeGroup struct {
	Time  string    `json:"time"`
	Items []DueItem `json:"items"`
}

// Store is the single write path for medications. Each mutation writes
// through the repository, resynchronises reminders and reloads the cached
// list. Nothing is rolled back when a later step fails.
type Store struct {
	repo      Repository
	reminders Notifier
	logger    zerolog.Logger

	mu          sync.RWMutex
	medications []*MedicationWithSchedules
	inflight    int
	lastErr     error

	locks *keyedMutex
}

func NewStore(repo Repository, reminders Notifier, logger zerolog.Logger) *Store {
	return &Store{
		repo:        repo,
		reminders:   reminders,
		logger:      logger,
		medications: []*MedicationWithSchedules{},
		locks:       newKeyedMutex(),
	}
}

// Load replaces the cached list with the repository's. On failure the
// previous list is kept.
func (s *Store) Load(ctx context.Context) error {
	s.begin()
	return s.end(s.reload(ctx))
}

// Refresh is Load.
func (s *Store) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// Add persists a medication with its schedules and registers its reminders.
func (s *Store) Add(ctx context.Context, in MedicationInput, schedules []ScheduleInput) (*MedicationWithSchedules, error) {
	if err := validateInput(&in, schedules); err != nil {
		return nil, err
	}

	s.begin()
	med := &Medication{ID: uuid.NewString()}
	in.apply(med)

	unlock := s.locks.Lock(med.ID)
	defer unlock()

	if err := s.repo.CreateMedication(ctx, med); err != nil {
		return nil, s.end(err)
	}

	agg := &MedicationWithSchedules{Medication: *med}
	created, err := s.createSchedules(ctx, med.ID, schedules)
	agg.Schedules = created
	if err != nil {
		return nil, s.end(err)
	}

	ids := s.reminders.ScheduleNotifications(ctx, agg)
	s.logger.Info().Str("medication_id", med.ID).Int("reminders", len(ids)).Msg("medication added")

	if err := s.reload(ctx); err != nil {
		return nil, s.end(err)
	}
	s.end(nil)
	return s.cachedOr(agg), nil
}

// Update replaces the medication's fields and all of its schedules. New
// schedules always get new ids.
func (s *Store) Update(ctx context.Context, id string, in MedicationInput, schedules []ScheduleInput) (*MedicationWithSchedules, error) {
	if err := validateInput(&in, schedules); err != nil {
		return nil, err
	}

	s.begin()
	unlock := s.locks.Lock(id)
	defer unlock()

	med := &Medication{ID: id}
	in.apply(med)
	if err := s.repo.UpdateMedication(ctx, med); err != nil {
		return nil, s.end(err)
	}
	if err := s.repo.DeleteSchedulesForMedication(ctx, id); err != nil {
		return nil, s.end(err)
	}

	agg := &MedicationWithSchedules{Medication: *med}
	created, err := s.createSchedules(ctx, id, schedules)
	agg.Schedules = created
	if err != nil {
		return nil, s.end(err)
	}

	ids, err := s.reminders.RescheduleForMedication(ctx, agg)
	if err != nil {
		s.logger.Warn().Err(err).Str("medication_id", id).Msg("failed to cancel previous reminders")
	}
	s.logger.Info().Str("medication_id", id).Int("reminders", len(ids)).Msg("medication updated")

	if err := s.reload(ctx); err != nil {
		return nil, s.end(err)
	}
	s.end(nil)
	return s.cachedOr(agg), nil
}

// Delete cancels the medication's reminders, then deletes it with its
// schedules and logs.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.begin()
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.reminders.CancelForMedication(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("medication_id", id).Msg("failed to cancel reminders")
	}
	if err := s.repo.DeleteMedication(ctx, id); err != nil {
		return s.end(err)
	}
	s.logger.Info().Str("medication_id", id).Msg("medication deleted")

	return s.end(s.reload(ctx))
}

// ToggleSchedule flips a schedule's active flag and rebuilds the owning
// medication's reminders from the reloaded list.
func (s *Store) ToggleSchedule(ctx context.Context, scheduleID string) error {
	s.begin()
	unlock, err := s.lockSchedule(ctx, scheduleID)
	if err != nil {
		return s.end(err)
	}
	defer unlock()

	if err := s.repo.ToggleScheduleActive(ctx, scheduleID); err != nil {
		return s.end(err)
	}
	if err := s.reload(ctx); err != nil {
		return s.end(err)
	}

	if owner := s.ownerOf(scheduleID); owner != nil {
		if _, err := s.reminders.RescheduleForMedication(ctx, owner); err != nil {
			s.logger.Warn().Err(err).Str("medication_id", owner.ID).Msg("failed to cancel previous reminders")
		}
	}
	return s.end(nil)
}

// DeleteSchedule retires a single schedule without touching its siblings.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID string) error {
	s.begin()
	unlock, err := s.lockSchedule(ctx, scheduleID)
	if err != nil {
		return s.end(err)
	}
	defer unlock()

	if err := s.reminders.CancelForSchedule(ctx, scheduleID); err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", scheduleID).Msg("failed to cancel reminders")
	}
	if err := s.repo.DeleteSchedule(ctx, scheduleID); err != nil {
		return s.end(err)
	}
	return s.end(s.reload(ctx))
}

// Resync cancels every reminder and registers them again from the
// repository. It returns the number of reminders registered.
func (s *Store) Resync(ctx context.Context) (int, error) {
	s.begin()
	if err := s.reload(ctx); err != nil {
		return 0, s.end(err)
	}
	if err := s.reminders.CancelAll(ctx); err != nil {
		return 0, s.end(err)
	}

	total := 0
	for _, m := range s.Medications() {
		unlock := s.locks.Lock(m.ID)
		total += len(s.reminders.ScheduleNotifications(ctx, m))
		unlock()
	}
	s.logger.Info().Int("reminders", total).Msg("reminders resynchronised")
	return total, s.end(nil)
}

// LogDose records a dose event for a medication. The schedule must belong
// to that medication.
func (s *Store) LogDose(ctx context.Context, medicationID string, in LogInput) (*MedicationLog, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	sc, err := s.repo.GetSchedule(ctx, in.ScheduleID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, persistErr("create log", ErrNotFound)
	}
	if sc.MedicationID != medicationID {
		return nil, &ValidationError{Field: "schedule_id", Reason: "belongs to another medication"}
	}
	if in.TakenAt == 0 {
		in.TakenAt = time.Now().UnixMilli()
	}
	l := &MedicationLog{
		MedicationID:  medicationID,
		ScheduleID:    in.ScheduleID,
		TakenAt:       in.TakenAt,
		ScheduledTime: in.ScheduledTime,
		Status:        in.Status,
	}
	if err := s.repo.CreateLog(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Logs lists a medication's dose events, newest first.
func (s *Store) Logs(ctx context.Context, medicationID string, limit, offset int) ([]*MedicationLog, int, error) {
	return s.repo.ListLogs(ctx, medicationID, limit, offset)
}

// Search matches medication names in the repository. An empty query lists
// everything.
func (s *Store) Search(ctx context.Context, query string) ([]*Medication, error) {
	if query == "" {
		return s.repo.ListMedications(ctx)
	}
	return s.repo.SearchMedications(ctx, query)
}

// MedicationByID reads the cached list only.
func (s *Store) MedicationByID(id string) (*MedicationWithSchedules, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.medications {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Medications returns the cached list.
func (s *Store) Medications() []*MedicationWithSchedules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MedicationWithSchedules, len(s.medications))
	copy(out, s.medications)
	return out
}

// Snapshot returns the cached list with the loading and error state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Medications: make([]*MedicationWithSchedules, len(s.medications)),
		Loading:     s.inflight > 0,
	}
	copy(snap.Medications, s.medications)
	if s.lastErr != nil {
		snap.Err = s.lastErr.Error()
	}
	return snap
}

// DueOnDay returns the cached medications with at least one active schedule
// on date's weekday.
func (s *Store) DueOnDay(date time.Time) []*MedicationWithSchedules {
	out := []*MedicationWithSchedules{}
	for _, m := range s.Medications() {
		for i := range m.Schedules {
			if m.Schedules[i].DueOn(date) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// GroupedByTimeForDay buckets every active schedule due on date by its time,
// with buckets in ascending time order.
func (s *Store) GroupedByTimeForDay(date time.Time) []TimeGroup {
	buckets := map[string][]DueItem{}
	for _, m := range s.Medications() {
		for _, sc := range m.Schedules {
			if sc.DueOn(date) {
				buckets[sc.Time] = append(buckets[sc.Time], DueItem{Medication: m, Schedule: sc})
			}
		}
	}

	times := make([]string, 0, len(buckets))
	for t := range buckets {
		times = append(times, t)
	}
	sort.Strings(times)

	groups := make([]TimeGroup, 0, len(times))
	for _, t := range times {
		groups = append(groups, TimeGroup{Time: t, Items: buckets[t]})
	}
	return groups
}

func validateInput(in *MedicationInput, schedules []ScheduleInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	for i := range schedules {
		if err := schedules[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createSchedules(ctx context.Context, medicationID string, inputs []ScheduleInput) ([]Schedule, error) {
	out := make([]Schedule, 0, len(inputs))
	for _, in := range inputs {
		sc := Schedule{
			ID:           uuid.NewString(),
			MedicationID: medicationID,
			Time:         in.Time,
			DaysOfWeek:   in.DaysOfWeek,
			IsActive:     in.active(),
		}
		if err := s.repo.CreateSchedule(ctx, &sc); err != nil {
			return out, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// lockSchedule locks the medication owning scheduleID. Unknown schedules
// are locked by their own id so the repository reports them.
func (s *Store) lockSchedule(ctx context.Context, scheduleID string) (func(), error) {
	sc, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return s.locks.Lock("schedule:" + scheduleID), nil
	}
	return s.locks.Lock(sc.MedicationID), nil
}

func (s *Store) ownerOf(scheduleID string) *MedicationWithSchedules {
	for _, m := range s.Medications() {
		if _, ok := m.Schedule(scheduleID); ok {
			return m
		}
	}
	return nil
}

func (s *Store) cachedOr(agg *MedicationWithSchedules) *MedicationWithSchedules {
	if m, ok := s.MedicationByID(agg.ID); ok {
		return m
	}
	return agg
}

func (s *Store) reload(ctx context.Context) error {
	meds, err := s.repo.ListMedicationsWithSchedules(ctx)
	if err != nil {
		return err
	}
	if meds == nil {
		meds = []*MedicationWithSchedules{}
	}
	for _, m := range meds {
		m.Schedules = emptySchedules(m.Schedules)
	}

	s.mu.Lock()
	s.medications = meds
	s.mu.Unlock()
	return nil
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.lastErr = nil
	s.mu.Unlock()
}

// end closes an operation started by begin and returns err unchanged.
func (s *Store) end(err error) error {
	s.mu.Lock()
	s.inflight--
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("medication store operation failed")
	}
	return err
}
