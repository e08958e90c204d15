package progress

import (
	"context"
	"fmt"
	"time"

	"clearner-backend/internal/errs"
	"clearner-backend/internal/store"
)

// Summary is the per-lesson view returned to clients.
type Summary struct {
	LessonID    string `json:"lessonId"`
	CurrentStep int    `json:"currentStep"`
	Completed   bool   `json:"completed"`
}

// Tracker persists per-user lesson progress. Upserts are
// last-write-wins by call order; callers wanting monotonic steps must
// enforce that themselves.
type Tracker struct {
	store store.Store
}

func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Upsert writes the progress row for (userID, lessonID), creating it
// on first write. The row is marked dirty even when the values are
// unchanged.
func (t *Tracker) Upsert(ctx context.Context, userID, lessonID string, currentStep int, completed bool) error {
	if userID == "" {
		return errs.Validation("userId")
	}
	if lessonID == "" {
		return errs.Validation("lessonId")
	}
	if currentStep < 0 {
		return errs.Validation("currentStep")
	}

	p := &store.LessonProgress{
		UserID:      userID,
		LessonID:    lessonID,
		CurrentStep: currentStep,
		Completed:   completed,
		UpdatedAt:   time.Now().UnixMilli(),
	}
	if err := t.store.UpsertProgress(ctx, p); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// List returns the user's progress ordered by lesson id. A user with
// no rows gets an empty slice, not an error.
func (t *Tracker) List(ctx context.Context, userID string) ([]Summary, error) {
	if userID == "" {
		return nil, errs.Validation("userId")
	}

	rows, err := t.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, Summary{
			LessonID:    row.LessonID,
			CurrentStep: row.CurrentStep,
			Completed:   row.Completed,
		})
	}
	return summaries, nil
}

// SetPreference upserts a per-user key/value preference.
func (t *Tracker) SetPreference(ctx context.Context, userID, key, value string) error {
	if userID == "" {
		return errs.Validation("userId")
	}
	if key == "" {
		return errs.Validation("key")
	}

	pref := &store.UserPreference{
		UserID:    userID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := t.store.UpsertPreference(ctx, pref); err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// GetPreference returns the stored value; absence is ErrNotFound.
func (t *Tracker) GetPreference(ctx context.Context, userID, key string) (string, error) {
	if userID == "" {
		return "", errs.Validation("userId")
	}
	if key == "" {
		return "", errs.Validation("key")
	}

	pref, err := t.store.GetPreference(ctx, userID, key)
	if err != nil {
		return "", fmt.Errorf("failed to read preference: %w", err)
	}
	if pref == nil {
		return "", errs.ErrNotFound
	}
	return pref.Value, nil
}
