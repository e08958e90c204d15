package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"clearner-backend/internal/logger"
)

// SchemaVersion is recorded in app_meta after a successful init.
const SchemaVersion = "1"

// InitSchema creates every table and index the service needs. All
// statements are create-if-absent: running it on every start is safe
// and never touches existing data.
func (d *Database) InitSchema() error {
	var stmts []string
	switch d.Dialect {
	case DialectMySQL:
		stmts = mysqlSchema
	default:
		stmts = sqliteSchema
	}

	for _, stmt := range stmts {
		if _, err := d.DB.Exec(stmt); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; an already
			// present index is not a failure on re-init
			if isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if err := d.recordSchemaVersion(); err != nil {
		return err
	}

	logger.Log.Info("Schema initialized",
		zap.String("dialect", string(d.Dialect)),
		zap.String("version", SchemaVersion),
	)
	return nil
}

func (d *Database) recordSchemaVersion() error {
	var query string
	if d.Dialect == DialectMySQL {
		query = `INSERT INTO app_meta (meta_key, meta_value) VALUES ('schema_version', ?)
				 ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`
	} else {
		query = `INSERT INTO app_meta (meta_key, meta_value) VALUES ('schema_version', ?)
				 ON CONFLICT(meta_key) DO UPDATE SET meta_value = excluded.meta_value`
	}
	if _, err := d.DB.Exec(query, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}

// CurrentSchemaVersion reads the recorded version, empty string when
// the database has never been initialized.
func (d *Database) CurrentSchemaVersion() (string, error) {
	var version string
	err := d.DB.QueryRow(`SELECT meta_value FROM app_meta WHERE meta_key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return version, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS app_meta (
		meta_key TEXT PRIMARY KEY,
		meta_value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'DIRTY'
	)`,
	`CREATE TABLE IF NOT EXISTS lessons_progress (
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		current_step INTEGER NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'DIRTY',
		PRIMARY KEY (user_id, lesson_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_step_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'DIRTY',
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT NOT NULL,
		pref_key TEXT NOT NULL,
		pref_value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'DIRTY',
		PRIMARY KEY (user_id, pref_key),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS external_notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at INTEGER NOT NULL,
		sent_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_last_active ON users(last_active_at)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_progress_updated ON lessons_progress(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_step_events_user_lesson ON lesson_step_events(user_id, lesson_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_retry ON sync_queue(retry_count)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_status ON external_notifications(status)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS app_meta (
		meta_key VARCHAR(64) PRIMARY KEY,
		meta_value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		display_name VARCHAR(191) NOT NULL UNIQUE,
		created_at BIGINT NOT NULL,
		last_active_at BIGINT NOT NULL,
		sync_status VARCHAR(16) NOT NULL DEFAULT 'DIRTY'
	)`,
	`CREATE TABLE IF NOT EXISTS lessons_progress (
		user_id VARCHAR(64) NOT NULL,
		lesson_id VARCHAR(191) NOT NULL,
		current_step INT NOT NULL,
		completed TINYINT(1) NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL,
		sync_status VARCHAR(16) NOT NULL DEFAULT 'DIRTY',
		PRIMARY KEY (user_id, lesson_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_step_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		lesson_id VARCHAR(191) NOT NULL,
		step_index INT NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		sync_status VARCHAR(16) NOT NULL DEFAULT 'DIRTY',
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		user_id VARCHAR(64) NOT NULL,
		pref_key VARCHAR(191) NOT NULL,
		pref_value TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		sync_status VARCHAR(16) NOT NULL DEFAULT 'DIRTY',
		PRIMARY KEY (user_id, pref_key),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		entity_type VARCHAR(64) NOT NULL,
		entity_id VARCHAR(191) NOT NULL,
		operation VARCHAR(16) NOT NULL,
		payload TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		retry_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS external_notifications (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		provider VARCHAR(64) NOT NULL,
		message TEXT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		created_at BIGINT NOT NULL,
		sent_at BIGINT
	)`,
	`CREATE INDEX idx_users_last_active ON users(last_active_at)`,
	`CREATE INDEX idx_lessons_progress_updated ON lessons_progress(updated_at)`,
	`CREATE INDEX idx_step_events_user_lesson ON lesson_step_events(user_id, lesson_id)`,
	`CREATE INDEX idx_sync_queue_retry ON sync_queue(retry_count)`,
	`CREATE INDEX idx_notifications_status ON external_notifications(status)`,
}
