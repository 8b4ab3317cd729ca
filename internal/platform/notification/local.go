package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pillbox/pillbox/internal/platform/kv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const keyPrefix = "notification"

// LocalScheduler keeps registered notifications in the on-device key/value
// store and arms one cron entry per notification. Persisted notifications are
// re-armed by Start, so registrations survive a restart.
type LocalScheduler struct {
	store     *kv.Store
	cron      *cron.Cron
	deliverer Deliverer
	gate      Gate
	logger    zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewLocalScheduler creates a scheduler firing in loc. gate may be nil.
func NewLocalScheduler(store *kv.Store, loc *time.Location, deliverer Deliverer, gate Gate, logger zerolog.Logger) *LocalScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &LocalScheduler{
		store:     store,
		cron:      cron.New(cron.WithLocation(loc)),
		deliverer: deliverer,
		gate:      gate,
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start re-arms every persisted notification and starts the cron loop.
// Notifications armed before Start keep a single cron entry.
func (s *LocalScheduler) Start(ctx context.Context) error {
	reqs, err := s.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, req := range reqs {
		s.disarm(req.ID)
		if err := s.arm(req); err != nil {
			s.logger.Warn().Err(err).Str("notification_id", req.ID).Msg("skipping persisted notification")
		}
	}
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Int("notifications", len(reqs)).Msg("notification scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running deliveries.
func (s *LocalScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *LocalScheduler) Schedule(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Trigger.Validate(); err != nil {
		return "", err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarm(req.ID)
	if err := s.arm(req); err != nil {
		return "", err
	}
	if err := s.store.Put(kv.Key(keyPrefix, req.ID), req); err != nil {
		s.disarm(req.ID)
		return "", fmt.Errorf("persist notification %s: %w", req.ID, err)
	}
	return req.ID, nil
}

func (s *LocalScheduler) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarm(id)
	if err := s.store.Delete(kv.Key(keyPrefix, id)); err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return nil
}

func (s *LocalScheduler) List(ctx context.Context) ([]Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var reqs []Request
	err := s.store.Each([]byte(keyPrefix+":"), func(key, val []byte) error {
		var req Request
		if err := json.Unmarshal(val, &req); err != nil {
			return fmt.Errorf("decode notification %s: %w", key, err)
		}
		reqs = append(reqs, req)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return reqs, nil
}

func (s *LocalScheduler) CancelAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		s.disarm(id)
	}
	if _, err := s.store.DeletePrefix([]byte(keyPrefix + ":")); err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

// Armed returns the ids with a live cron entry, sorted.
func (s *LocalScheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// arm must be called with s.mu held.
func (s *LocalScheduler) arm(req Request) error {
	entryID, err := s.cron.AddFunc(req.Trigger.CronSpec(), func() { s.fire(req) })
	if err != nil {
		return fmt.Errorf("arm notification %s: %w", req.ID, err)
	}
	s.entries[req.ID] = entryID
	return nil
}

// disarm must be called with s.mu held.
func (s *LocalScheduler) disarm(id string) {
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

func (s *LocalScheduler) fire(req Request) {
	ctx := context.Background()

	if !req.Trigger.Repeats {
		if err := s.Cancel(ctx, req.ID); err != nil {
			s.logger.Error().Err(err).Str("notification_id", req.ID).Msg("failed to retire one-shot notification")
		}
	}

	if s.gate != nil && !s.gate.AllowDelivery(ctx) {
		s.logger.Debug().Str("notification_id", req.ID).Msg("notification suppressed by preferences")
		return
	}

	if err := s.deliverer.Deliver(ctx, req.Content); err != nil {
		s.logger.Error().Err(err).Str("notification_id", req.ID).Msg("failed to deliver notification")
	}
}
