package preferences

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Service reads and updates notification preferences and gates reminder
// delivery on them.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Get(ctx context.Context) (Preferences, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, p Preferences) (Preferences, error) {
	p.UpdatedAt = time.Now().UnixMilli()
	if err := s.repo.Save(ctx, p); err != nil {
		return Preferences{}, err
	}
	s.logger.Info().
		Bool("medication_reminders", p.MedicationReminders).
		Bool("sound_enabled", p.SoundEnabled).
		Bool("vibration_enabled", p.VibrationEnabled).
		Msg("notification preferences updated")
	return p, nil
}

// AllowDelivery reports whether fired reminders should be presented. When
// the preferences cannot be read it allows delivery.
func (s *Service) AllowDelivery(ctx context.Context) bool {
	p, err := s.repo.Get(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read notification preferences")
		return true
	}
	return p.MedicationReminders
}
