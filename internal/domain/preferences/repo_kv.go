package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/pillbox/pillbox/internal/platform/kv"
)

var notificationsKey = kv.Key("preferences", "notifications")

type kvRepo struct {
	store *kv.Store
}

func NewKVRepo(store *kv.Store) Repository {
	return &kvRepo{store: store}
}

func (r *kvRepo) Get(ctx context.Context) (Preferences, error) {
	if err := ctx.Err(); err != nil {
		return Preferences{}, err
	}
	p := Defaults()
	if err := r.store.Get(notificationsKey, &p); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Defaults(), nil
		}
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

func (r *kvRepo) Save(ctx context.Context, p Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.Put(notificationsKey, p); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
