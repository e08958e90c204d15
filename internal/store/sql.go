package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"clearner-backend/internal/database"
	"clearner-backend/internal/errs"
)

// SQLStore implements Store on a relational database. Every mutation
// runs in its own transaction and appends the matching sync_queue
// entry before committing, so a row is never dirty without a queued
// operation and vice versa.
type SQLStore struct {
	db *database.Database
}

func NewSQLStore(db *database.Database) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, display_name, created_at, last_active_at, sync_status
			  FROM users WHERE id = ?`

	row := s.db.DB.QueryRowContext(ctx, query, id)

	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.CreatedAt, &u.LastActiveAt, &u.SyncStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &u, nil
}

func (s *SQLStore) GetUserByDisplayName(ctx context.Context, displayName string) (*User, error) {
	query := `SELECT id, display_name, created_at, last_active_at, sync_status
			  FROM users WHERE display_name = ?`

	row := s.db.DB.QueryRowContext(ctx, query, displayName)

	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.CreatedAt, &u.LastActiveAt, &u.SyncStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user *User) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO users (id, display_name, created_at, last_active_at, sync_status)
				  VALUES (?, ?, ?, ?, ?)`

		_, err := tx.ExecContext(ctx, query,
			user.ID, user.DisplayName, user.CreatedAt, user.LastActiveAt, user.SyncStatus)
		if err != nil {
			if isUniqueViolation(err) {
				return errs.ErrDuplicateName
			}
			return err
		}

		return s.enqueueTx(ctx, tx, EntityUser, user.ID, OpCreate, user, user.CreatedAt)
	})
}

// TouchUser bumps last_active_at and re-dirties the row.
func (s *SQLStore) TouchUser(ctx context.Context, id string, activeAt int64) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE users SET last_active_at = ?, sync_status = ? WHERE id = ?`

		res, err := tx.ExecContext(ctx, query, activeAt, SyncDirty, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errs.ErrNotFound
		}

		payload := map[string]interface{}{"id": id, "lastActiveAt": activeAt}
		return s.enqueueTx(ctx, tx, EntityUser, id, OpUpdate, payload, activeAt)
	})
}

func (s *SQLStore) DeleteUser(ctx context.Context, id string) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errs.ErrNotFound
		}

		payload := map[string]interface{}{"id": id}
		return s.enqueueTx(ctx, tx, EntityUser, id, OpDelete, payload, time.Now().UnixMilli())
	})
}

func (s *SQLStore) UpsertProgress(ctx context.Context, progress *LessonProgress) error {
	var query string
	if s.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO lessons_progress (user_id, lesson_id, current_step, completed, updated_at, sync_status)
				 VALUES (?, ?, ?, ?, ?, 'DIRTY')
				 ON DUPLICATE KEY UPDATE
				 current_step = VALUES(current_step),
				 completed = VALUES(completed),
				 updated_at = VALUES(updated_at),
				 sync_status = 'DIRTY'`
	} else {
		query = `INSERT INTO lessons_progress (user_id, lesson_id, current_step, completed, updated_at, sync_status)
				 VALUES (?, ?, ?, ?, ?, 'DIRTY')
				 ON CONFLICT(user_id, lesson_id) DO UPDATE SET
				 current_step = excluded.current_step,
				 completed = excluded.completed,
				 updated_at = excluded.updated_at,
				 sync_status = 'DIRTY'`
	}

	progress.SyncStatus = SyncDirty

	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			progress.UserID, progress.LessonID, progress.CurrentStep, progress.Completed, progress.UpdatedAt)
		if err != nil {
			return err
		}

		entityID := progress.UserID + "/" + progress.LessonID
		return s.enqueueTx(ctx, tx, EntityProgress, entityID, OpUpsert, progress, progress.UpdatedAt)
	})
}

func (s *SQLStore) ListProgress(ctx context.Context, userID string) ([]*LessonProgress, error) {
	query := `SELECT user_id, lesson_id, current_step, completed, updated_at, sync_status
			  FROM lessons_progress WHERE user_id = ? ORDER BY lesson_id`

	rows, err := s.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := make([]*LessonProgress, 0)
	for rows.Next() {
		var p LessonProgress
		err := rows.Scan(&p.UserID, &p.LessonID, &p.CurrentStep, &p.Completed, &p.UpdatedAt, &p.SyncStatus)
		if err != nil {
			return nil, err
		}
		progress = append(progress, &p)
	}

	return progress, rows.Err()
}

func (s *SQLStore) InsertStepEvent(ctx context.Context, event *LessonStepEvent) error {
	event.SyncStatus = SyncDirty

	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO lesson_step_events (user_id, lesson_id, step_index, event_type, created_at, sync_status)
				  VALUES (?, ?, ?, ?, ?, ?)`

		res, err := tx.ExecContext(ctx, query,
			event.UserID, event.LessonID, event.StepIndex, event.EventType, event.CreatedAt, event.SyncStatus)
		if err != nil {
			return err
		}

		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		event.ID = id

		return s.enqueueTx(ctx, tx, EntityStepEvent, strconv.FormatInt(id, 10), OpCreate, event, event.CreatedAt)
	})
}

func (s *SQLStore) UpsertPreference(ctx context.Context, pref *UserPreference) error {
	var query string
	if s.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO user_preferences (user_id, pref_key, pref_value, updated_at, sync_status)
				 VALUES (?, ?, ?, ?, 'DIRTY')
				 ON DUPLICATE KEY UPDATE
				 pref_value = VALUES(pref_value),
				 updated_at = VALUES(updated_at),
				 sync_status = 'DIRTY'`
	} else {
		query = `INSERT INTO user_preferences (user_id, pref_key, pref_value, updated_at, sync_status)
				 VALUES (?, ?, ?, ?, 'DIRTY')
				 ON CONFLICT(user_id, pref_key) DO UPDATE SET
				 pref_value = excluded.pref_value,
				 updated_at = excluded.updated_at,
				 sync_status = 'DIRTY'`
	}

	pref.SyncStatus = SyncDirty

	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, pref.UserID, pref.Key, pref.Value, pref.UpdatedAt)
		if err != nil {
			return err
		}

		entityID := pref.UserID + "/" + pref.Key
		return s.enqueueTx(ctx, tx, EntityPreference, entityID, OpUpsert, pref, pref.UpdatedAt)
	})
}

func (s *SQLStore) GetPreference(ctx context.Context, userID, key string) (*UserPreference, error) {
	query := `SELECT user_id, pref_key, pref_value, updated_at, sync_status
			  FROM user_preferences WHERE user_id = ? AND pref_key = ?`

	row := s.db.DB.QueryRowContext(ctx, query, userID, key)

	var p UserPreference
	err := row.Scan(&p.UserID, &p.Key, &p.Value, &p.UpdatedAt, &p.SyncStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *SQLStore) ListPreferences(ctx context.Context, userID string) ([]*UserPreference, error) {
	query := `SELECT user_id, pref_key, pref_value, updated_at, sync_status
			  FROM user_preferences WHERE user_id = ? ORDER BY pref_key`

	rows, err := s.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make([]*UserPreference, 0)
	for rows.Next() {
		var p UserPreference
		err := rows.Scan(&p.UserID, &p.Key, &p.Value, &p.UpdatedAt, &p.SyncStatus)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, &p)
	}

	return prefs, rows.Err()
}

func (s *SQLStore) ListPendingSyncEntries(ctx context.Context, limit int) ([]*SyncQueueEntry, error) {
	query := `SELECT id, entity_type, entity_id, operation, payload, created_at, retry_count
			  FROM sync_queue ORDER BY id LIMIT ?`

	rows, err := s.db.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*SyncQueueEntry, 0)
	for rows.Next() {
		var e SyncQueueEntry
		err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Operation, &e.Payload, &e.CreatedAt, &e.RetryCount)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func (s *SQLStore) IncrementSyncRetry(ctx context.Context, id int64) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

func (s *SQLStore) DeleteSyncEntry(ctx context.Context, id int64) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

// PruneSyncEntries drops entries whose retry budget is exhausted and
// returns how many were removed.
func (s *SQLStore) PruneSyncEntries(ctx context.Context, maxRetries int) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE retry_count >= ?`, maxRetries)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) CreateNotification(ctx context.Context, n *ExternalNotification) error {
	if n.Status == "" {
		n.Status = NotificationPending
	}

	query := `INSERT INTO external_notifications (provider, message, status, created_at)
			  VALUES (?, ?, ?, ?)`

	res, err := s.db.DB.ExecContext(ctx, query, n.Provider, n.Message, n.Status, n.CreatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = id
	return nil
}

func (s *SQLStore) ListPendingNotifications(ctx context.Context, limit int) ([]*ExternalNotification, error) {
	query := `SELECT id, provider, message, status, created_at, sent_at
			  FROM external_notifications WHERE status = ? ORDER BY id LIMIT ?`

	rows, err := s.db.DB.QueryContext(ctx, query, NotificationPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]*ExternalNotification, 0)
	for rows.Next() {
		var n ExternalNotification
		err := rows.Scan(&n.ID, &n.Provider, &n.Message, &n.Status, &n.CreatedAt, &n.SentAt)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

func (s *SQLStore) MarkNotificationSent(ctx context.Context, id int64, sentAt int64) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE external_notifications SET status = ?, sent_at = ? WHERE id = ?`,
		NotificationSent, sentAt, id)
	return err
}

func (s *SQLStore) MarkNotificationFailed(ctx context.Context, id int64) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE external_notifications SET status = ? WHERE id = ?`,
		NotificationFailed, id)
	return err
}

// PruneNotifications removes delivered or failed notifications older
// than the cutoff.
func (s *SQLStore) PruneNotifications(ctx context.Context, olderThan int64) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM external_notifications WHERE status IN (?, ?) AND created_at < ?`,
		NotificationSent, NotificationFailed, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) GetSyncStats(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM sync_queue`, &stats.PendingOperations},
		{`SELECT COUNT(*) FROM users WHERE sync_status = 'DIRTY'`, &stats.DirtyUsers},
		{`SELECT COUNT(*) FROM lessons_progress WHERE sync_status = 'DIRTY'`, &stats.DirtyProgress},
		{`SELECT COUNT(*) FROM lesson_step_events WHERE sync_status = 'DIRTY'`, &stats.DirtyEvents},
		{`SELECT COUNT(*) FROM user_preferences WHERE sync_status = 'DIRTY'`, &stats.DirtyPreferences},
		{`SELECT COUNT(*) FROM external_notifications WHERE status = 'PENDING'`, &stats.PendingNotifications},
	}

	for _, c := range counts {
		if err := s.db.DB.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// enqueueTx appends the sync_queue row describing a mutation inside
// the mutation's own transaction.
func (s *SQLStore) enqueueTx(ctx context.Context, tx *sql.Tx, entityType, entityID, operation string, payload interface{}, createdAt int64) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode sync payload: %w", err)
	}

	query := `INSERT INTO sync_queue (entity_type, entity_id, operation, payload, created_at, retry_count)
			  VALUES (?, ?, ?, ?, ?, 0)`

	_, err = tx.ExecContext(ctx, query, entityType, entityID, operation, string(body), createdAt)
	return err
}

// isUniqueViolation recognizes duplicate-key failures from both
// backends: typed error 1062 on MySQL, constraint text on SQLite.
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
