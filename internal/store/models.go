package store

// SyncStatus marks whether a row carries local changes not yet
// pushed to the remote authority.
type SyncStatus string

const (
	SyncClean SyncStatus = "CLEAN"
	SyncDirty SyncStatus = "DIRTY"
)

// Notification delivery states.
const (
	NotificationPending = "PENDING"
	NotificationSent    = "SENT"
	NotificationFailed  = "FAILED"
)

// Sync queue operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Entity type tags used in sync_queue rows.
const (
	EntityUser       = "user"
	EntityProgress   = "lesson_progress"
	EntityStepEvent  = "lesson_step_event"
	EntityPreference = "user_preference"
)

// Timestamps are milliseconds since the Unix epoch throughout.

type User struct {
	ID           string     `db:"id" json:"id"`
	DisplayName  string     `db:"display_name" json:"displayName"`
	CreatedAt    int64      `db:"created_at" json:"createdAt"`
	LastActiveAt int64      `db:"last_active_at" json:"lastActiveAt"`
	SyncStatus   SyncStatus `db:"sync_status" json:"syncStatus"`
}

// LessonProgress is keyed by (UserID, LessonID); at most one row per
// pair exists.
type LessonProgress struct {
	UserID      string     `db:"user_id" json:"userId"`
	LessonID    string     `db:"lesson_id" json:"lessonId"`
	CurrentStep int        `db:"current_step" json:"currentStep"`
	Completed   bool       `db:"completed" json:"completed"`
	UpdatedAt   int64      `db:"updated_at" json:"updatedAt"`
	SyncStatus  SyncStatus `db:"sync_status" json:"syncStatus"`
}

// LessonStepEvent is append-only; rows are never updated or deleted
// by the service.
type LessonStepEvent struct {
	ID         int64      `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"userId"`
	LessonID   string     `db:"lesson_id" json:"lessonId"`
	StepIndex  int        `db:"step_index" json:"stepIndex"`
	EventType  string     `db:"event_type" json:"eventType"`
	CreatedAt  int64      `db:"created_at" json:"createdAt"`
	SyncStatus SyncStatus `db:"sync_status" json:"syncStatus"`
}

type UserPreference struct {
	UserID     string     `db:"user_id" json:"userId"`
	Key        string     `db:"pref_key" json:"key"`
	Value      string     `db:"pref_value" json:"value"`
	UpdatedAt  int64      `db:"updated_at" json:"updatedAt"`
	SyncStatus SyncStatus `db:"sync_status" json:"syncStatus"`
}

// SyncQueueEntry records a pending outbound change for the external
// reconciliation worker.
type SyncQueueEntry struct {
	ID         int64  `db:"id" json:"id"`
	EntityType string `db:"entity_type" json:"entityType"`
	EntityID   string `db:"entity_id" json:"entityId"`
	Operation  string `db:"operation" json:"operation"`
	Payload    string `db:"payload" json:"payload"`
	CreatedAt  int64  `db:"created_at" json:"createdAt"`
	RetryCount int    `db:"retry_count" json:"retryCount"`
}

// ExternalNotification is outbound-messaging state consumed by an
// external sender.
type ExternalNotification struct {
	ID        int64  `db:"id" json:"id"`
	Provider  string `db:"provider" json:"provider"`
	Message   string `db:"message" json:"message"`
	Status    string `db:"status" json:"status"`
	CreatedAt int64  `db:"created_at" json:"createdAt"`
	SentAt    *int64 `db:"sent_at" json:"sentAt,omitempty"`
}

// SyncStats is a point-in-time snapshot of local state awaiting
// reconciliation.
type SyncStats struct {
	PendingOperations    int64 `json:"pendingOperations"`
	DirtyUsers           int64 `json:"dirtyUsers"`
	DirtyProgress        int64 `json:"dirtyProgress"`
	DirtyEvents          int64 `json:"dirtyEvents"`
	DirtyPreferences     int64 `json:"dirtyPreferences"`
	PendingNotifications int64 `json:"pendingNotifications"`
}
