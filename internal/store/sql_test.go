package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearner-backend/internal/config"
	"clearner-backend/internal/database"
	"clearner-backend/internal/errs"
)

func setupStore(t *testing.T) (*SQLStore, *database.Database) {
	t.Helper()

	db, err := database.New(config.StorageConfig{Type: "sqlite", FilePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.InitSchema())

	return NewSQLStore(db), db
}

func newTestUser(name string) *User {
	now := time.Now().UnixMilli()
	return &User{
		ID:           "user-" + name,
		DisplayName:  name,
		CreatedAt:    now,
		LastActiveAt: now,
		SyncStatus:   SyncDirty,
	}
}

func TestUserRoundTrip(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))

	got, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, user.DisplayName, got.DisplayName)
	require.Equal(t, user.CreatedAt, got.CreatedAt)
	require.Equal(t, user.LastActiveAt, got.LastActiveAt)
	require.Equal(t, SyncDirty, got.SyncStatus)

	byName, err := st.GetUserByDisplayName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, byName)
	require.Equal(t, user.ID, byName.ID)
}

func TestGetUserAbsent(t *testing.T) {
	st, _ := setupStore(t)

	got, err := st.GetUser(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCreateUserDuplicateName(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, newTestUser("alice")))

	dup := newTestUser("alice")
	dup.ID = "user-alice-2"
	err := st.CreateUser(ctx, dup)
	require.ErrorIs(t, err, errs.ErrDuplicateName)

	// The losing insert must leave no queue entry behind
	entries, err := st.ListPendingSyncEntries(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestTouchUser(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))

	later := user.LastActiveAt + 500
	require.NoError(t, st.TouchUser(ctx, user.ID, later))

	got, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, later, got.LastActiveAt)
	require.Equal(t, SyncDirty, got.SyncStatus)

	require.ErrorIs(t, st.TouchUser(ctx, "nope", later), errs.ErrNotFound)
}

func TestUpsertProgress(t *testing.T) {
	st, db := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))

	first := &LessonProgress{UserID: user.ID, LessonID: "lesson1", CurrentStep: 3, Completed: false, UpdatedAt: 1000}
	require.NoError(t, st.UpsertProgress(ctx, first))

	second := &LessonProgress{UserID: user.ID, LessonID: "lesson1", CurrentStep: 5, Completed: true, UpdatedAt: 2000}
	require.NoError(t, st.UpsertProgress(ctx, second))

	rows, err := st.ListProgress(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 5, rows[0].CurrentStep)
	require.True(t, rows[0].Completed)
	require.Equal(t, int64(2000), rows[0].UpdatedAt)
	require.Equal(t, SyncDirty, rows[0].SyncStatus)

	var count int
	require.NoError(t, db.DB.QueryRow(
		`SELECT COUNT(*) FROM lessons_progress WHERE user_id = ? AND lesson_id = ?`,
		user.ID, "lesson1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestUpsertProgressLastWriteWins(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))

	require.NoError(t, st.UpsertProgress(ctx, &LessonProgress{UserID: user.ID, LessonID: "l", CurrentStep: 7, UpdatedAt: 1000}))
	// A smaller step still wins by call order
	require.NoError(t, st.UpsertProgress(ctx, &LessonProgress{UserID: user.ID, LessonID: "l", CurrentStep: 2, UpdatedAt: 2000}))

	rows, err := st.ListProgress(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, rows[0].CurrentStep)
}

func TestListProgressEmpty(t *testing.T) {
	st, _ := setupStore(t)

	rows, err := st.ListProgress(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func TestInsertStepEventsAppendOnly(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))

	var lastID int64
	for i := 0; i < 3; i++ {
		event := &LessonStepEvent{
			UserID:    user.ID,
			LessonID:  "lesson1",
			StepIndex: 4,
			EventType: "PASTE",
			CreatedAt: time.Now().UnixMilli(),
		}
		require.NoError(t, st.InsertStepEvent(ctx, event))
		require.Greater(t, event.ID, lastID)
		lastID = event.ID
	}
}

func TestUpsertPreference(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))

	require.NoError(t, st.UpsertPreference(ctx, &UserPreference{UserID: user.ID, Key: "theme", Value: "dark", UpdatedAt: 1000}))
	require.NoError(t, st.UpsertPreference(ctx, &UserPreference{UserID: user.ID, Key: "theme", Value: "light", UpdatedAt: 2000}))

	pref, err := st.GetPreference(ctx, user.ID, "theme")
	require.NoError(t, err)
	require.NotNil(t, pref)
	require.Equal(t, "light", pref.Value)
	require.Equal(t, int64(2000), pref.UpdatedAt)

	prefs, err := st.ListPreferences(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, prefs, 1)

	missing, err := st.GetPreference(ctx, user.ID, "locale")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDeleteUserCascades(t *testing.T) {
	st, db := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.UpsertProgress(ctx, &LessonProgress{UserID: user.ID, LessonID: "l1", CurrentStep: 1, UpdatedAt: 1000}))
	require.NoError(t, st.InsertStepEvent(ctx, &LessonStepEvent{UserID: user.ID, LessonID: "l1", StepIndex: 0, EventType: "PASTE", CreatedAt: 1000}))
	require.NoError(t, st.UpsertPreference(ctx, &UserPreference{UserID: user.ID, Key: "theme", Value: "dark", UpdatedAt: 1000}))

	require.NoError(t, st.DeleteUser(ctx, user.ID))

	got, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	for _, table := range []string{"lessons_progress", "lesson_step_events", "user_preferences"} {
		var count int
		require.NoError(t, db.DB.QueryRow(
			`SELECT COUNT(*) FROM `+table+` WHERE user_id = ?`, user.ID).Scan(&count))
		require.Zero(t, count, table)
	}
}

func TestSyncQueueProducedTransactionally(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.UpsertProgress(ctx, &LessonProgress{UserID: user.ID, LessonID: "l1", CurrentStep: 0, UpdatedAt: 1000}))
	require.NoError(t, st.InsertStepEvent(ctx, &LessonStepEvent{UserID: user.ID, LessonID: "l1", StepIndex: 0, EventType: "PASTE", CreatedAt: 1000}))

	entries, err := st.ListPendingSyncEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, EntityUser, entries[0].EntityType)
	require.Equal(t, OpCreate, entries[0].Operation)
	require.Equal(t, EntityProgress, entries[1].EntityType)
	require.Equal(t, OpUpsert, entries[1].Operation)
	require.Equal(t, EntityStepEvent, entries[2].EntityType)
	require.JSONEq(t, `{"id":"`+user.ID+`","displayName":"alice","createdAt":`+
		itoa(user.CreatedAt)+`,"lastActiveAt":`+itoa(user.LastActiveAt)+`,"syncStatus":"DIRTY"}`,
		entries[0].Payload)

	// A progress write for a missing user must roll back the queue
	// entry along with it
	err = st.UpsertProgress(ctx, &LessonProgress{UserID: "ghost", LessonID: "l1", CurrentStep: 0, UpdatedAt: 1000})
	require.Error(t, err)

	entries, err = st.ListPendingSyncEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestSyncQueueRetryAndPrune(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, newTestUser("alice")))
	require.NoError(t, st.CreateUser(ctx, newTestUser("bob")))

	entries, err := st.ListPendingSyncEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.IncrementSyncRetry(ctx, entries[0].ID))
	}

	pruned, err := st.PruneSyncEntries(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	remaining, err := st.ListPendingSyncEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, entries[1].ID, remaining[0].ID)

	require.NoError(t, st.DeleteSyncEntry(ctx, remaining[0].ID))
	remaining, err = st.ListPendingSyncEntries(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestNotificationLifecycle(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	n := &ExternalNotification{Provider: "email", Message: "welcome", CreatedAt: 1000}
	require.NoError(t, st.CreateNotification(ctx, n))
	require.NotZero(t, n.ID)
	require.Equal(t, NotificationPending, n.Status)

	pending, err := st.ListPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, st.MarkNotificationSent(ctx, n.ID, 2000))

	pending, err = st.ListPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	// Sent long ago, prune removes it
	removed, err := st.PruneNotifications(ctx, 5000)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestNotificationFailedKeptUntilCutoff(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	n := &ExternalNotification{Provider: "email", Message: "welcome", CreatedAt: 9000}
	require.NoError(t, st.CreateNotification(ctx, n))
	require.NoError(t, st.MarkNotificationFailed(ctx, n.ID))

	removed, err := st.PruneNotifications(ctx, 5000)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestGetSyncStats(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.UpsertProgress(ctx, &LessonProgress{UserID: user.ID, LessonID: "l1", CurrentStep: 0, UpdatedAt: 1000}))
	require.NoError(t, st.UpsertPreference(ctx, &UserPreference{UserID: user.ID, Key: "theme", Value: "dark", UpdatedAt: 1000}))
	require.NoError(t, st.CreateNotification(ctx, &ExternalNotification{Provider: "email", Message: "hi", CreatedAt: 1000}))

	stats, err := st.GetSyncStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.PendingOperations)
	require.Equal(t, int64(1), stats.DirtyUsers)
	require.Equal(t, int64(1), stats.DirtyProgress)
	require.Equal(t, int64(0), stats.DirtyEvents)
	require.Equal(t, int64(1), stats.DirtyPreferences)
	require.Equal(t, int64(1), stats.PendingNotifications)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
