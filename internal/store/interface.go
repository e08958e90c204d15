package store

import (
	"context"
)

type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByDisplayName(ctx context.Context, displayName string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	TouchUser(ctx context.Context, id string, activeAt int64) error
	DeleteUser(ctx context.Context, id string) error

	// Lesson progress
	UpsertProgress(ctx context.Context, progress *LessonProgress) error
	ListProgress(ctx context.Context, userID string) ([]*LessonProgress, error)

	// Step events
	InsertStepEvent(ctx context.Context, event *LessonStepEvent) error

	// Preferences
	UpsertPreference(ctx context.Context, pref *UserPreference) error
	GetPreference(ctx context.Context, userID, key string) (*UserPreference, error)
	ListPreferences(ctx context.Context, userID string) ([]*UserPreference, error)

	// Sync queue, consumed by the external reconciliation worker
	ListPendingSyncEntries(ctx context.Context, limit int) ([]*SyncQueueEntry, error)
	IncrementSyncRetry(ctx context.Context, id int64) error
	DeleteSyncEntry(ctx context.Context, id int64) error
	PruneSyncEntries(ctx context.Context, maxRetries int) (int64, error)

	// Notifications
	CreateNotification(ctx context.Context, n *ExternalNotification) error
	ListPendingNotifications(ctx context.Context, limit int) ([]*ExternalNotification, error)
	MarkNotificationSent(ctx context.Context, id int64, sentAt int64) error
	MarkNotificationFailed(ctx context.Context, id int64) error
	PruneNotifications(ctx context.Context, olderThan int64) (int64, error)

	// General
	GetSyncStats(ctx context.Context) (*SyncStats, error)
}
