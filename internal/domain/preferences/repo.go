package preferences

import "context"

// Repository persists the single notification preferences record.
type Repository interface {
	// Get returns Defaults when nothing has been saved yet.
	Get(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}
