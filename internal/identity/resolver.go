package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clearner-backend/internal/errs"
	"clearner-backend/internal/logger"
	"clearner-backend/internal/store"
)

// Resolver turns a display name into a User, creating the account on
// first sight. It is safe for concurrent use; the users table's
// unique display_name constraint settles creation races.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns the user for displayName, creating it when absent.
// Existing users get their last_active_at bumped and re-dirtied.
func (r *Resolver) Resolve(ctx context.Context, displayName string) (*store.User, error) {
	if displayName == "" {
		return nil, errs.Validation("displayName")
	}

	existing, err := r.store.GetUserByDisplayName(ctx, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return r.touch(ctx, existing)
	}

	now := time.Now().UnixMilli()
	user := &store.User{
		ID:           uuid.NewString(),
		DisplayName:  displayName,
		CreatedAt:    now,
		LastActiveAt: now,
		SyncStatus:   store.SyncDirty,
	}

	err = r.store.CreateUser(ctx, user)
	if errors.Is(err, errs.ErrDuplicateName) {
		// Lost the creation race; the winner's row is authoritative
		winner, lookupErr := r.store.GetUserByDisplayName(ctx, displayName)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to look up user after race: %w", lookupErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("user %q vanished after duplicate insert", displayName)
		}
		return r.touch(ctx, winner)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Log.Info("Created user",
		zap.String("userID", user.ID),
		zap.String("displayName", displayName),
	)
	return user, nil
}

// GetUser fetches a user by id; absence is ErrNotFound.
func (r *Resolver) GetUser(ctx context.Context, id string) (*store.User, error) {
	if id == "" {
		return nil, errs.Validation("id")
	}

	user, err := r.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, errs.ErrNotFound
	}
	return user, nil
}

func (r *Resolver) touch(ctx context.Context, user *store.User) (*store.User, error) {
	now := time.Now().UnixMilli()
	if err := r.store.TouchUser(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last active: %w", err)
	}
	user.LastActiveAt = now
	user.SyncStatus = store.SyncDirty
	return user, nil
}
