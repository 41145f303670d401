package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	maxRetries int
	retryDelay time.Duration
}

// Option customizes a SQLiteStore.
type Option func(*SQLiteStore)

// WithWriteRetry sets the bounded retry policy for writes that hit SQLite
// lock contention.
func WithWriteRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(s *SQLiteStore) {
		s.maxRetries = maxRetries
		s.retryDelay = baseDelay
	}
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts ...Option) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:         db,
		maxRetries: 3,
		retryDelay: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// execWithRetry runs a write statement, retrying SQLITE_BUSY / locked
// errors with exponential backoff. The WAL busy_timeout already absorbs
// most contention; this covers the residue.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return result, err
		}
		shared.Sleep(ctx, s.retryDelay*time.Duration(1<<attempt))
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return result, err
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_kv (
		device_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (device_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_device_kv_key ON device_kv(key);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		planned_seconds INTEGER NOT NULL,
		actual_seconds INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_device_ended ON sessions(device_id, ended_at);

	CREATE TABLE IF NOT EXISTS progress (
		device_id TEXT PRIMARY KEY,
		xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		coins INTEGER NOT NULL DEFAULT 0,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_active_date TEXT NOT NULL DEFAULT '',
		unlocked_pets TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDevice retrieves a device by its ID.
func (s *SQLiteStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := `
		SELECT device_id, name, last_seen_at, created_at, updated_at
		FROM devices WHERE device_id = ?`

	row := s.db.QueryRowContext(ctx, query, deviceID)

	var device domain.Device
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&device.DeviceID, &device.Name, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("device %s: %w", deviceID, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}

	device.LastSeenAt = time.Unix(lastSeen, 0)
	device.CreatedAt = time.Unix(createdAt, 0)
	device.UpdatedAt = time.Unix(updatedAt, 0)

	return &device, nil
}

// UpsertDevice creates or updates a device record.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, device *domain.Device) error {
	query := `
	INSERT INTO devices (device_id, name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		name = excluded.name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.execWithRetry(ctx, query,
		device.DeviceID, device.Name,
		device.LastSeenAt.Unix(), device.CreatedAt.Unix(), device.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a device.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error {
	query := `UPDATE devices SET last_seen_at = ?, updated_at = ? WHERE device_id = ?`
	result, err := s.execWithRetry(ctx, query, lastSeen.Unix(), time.Now().Unix(), deviceID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "device_id", deviceID)
	}

	return nil
}

// GetTimerRecord retrieves the persisted timer blob for a device.
func (s *SQLiteStore) GetTimerRecord(ctx context.Context, deviceID string) (*domain.TimerRecord, error) {
	value, err := s.getKV(ctx, deviceID, domain.TimerRecordKey)
	if err != nil {
		return nil, err
	}

	var rec domain.TimerRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		// An unparsable blob is indistinguishable from no state for the
		// guard; surface it as not-found rather than a hard failure.
		slog.Warn("Unparsable timer record", "device_id", deviceID, "error", err)
		return nil, fmt.Errorf("timer record for %s unparsable: %w", deviceID, errdefs.ErrNotFound)
	}
	return &rec, nil
}

// PutTimerRecord persists the timer blob for a device.
func (s *SQLiteStore) PutTimerRecord(ctx context.Context, deviceID string, rec *domain.TimerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal timer record: %w", err)
	}
	return s.putKV(ctx, deviceID, domain.TimerRecordKey, string(data))
}

// DeleteTimerRecord removes the timer blob for a device.
func (s *SQLiteStore) DeleteTimerRecord(ctx context.Context, deviceID string) error {
	return s.deleteKV(ctx, deviceID, domain.TimerRecordKey)
}

// BlockingMarkerPresent reports whether the device has an active blocking marker.
func (s *SQLiteStore) BlockingMarkerPresent(ctx context.Context, deviceID string) (bool, error) {
	_, err := s.getKV(ctx, deviceID, domain.BlockingMarkerKey)
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetBlockingMarker writes the blocking marker for a device.
func (s *SQLiteStore) SetBlockingMarker(ctx context.Context, deviceID string, at time.Time) error {
	// Stored as string epoch millis to match the mobile client's format;
	// only presence is ever interpreted.
	return s.putKV(ctx, deviceID, domain.BlockingMarkerKey, strconv.FormatInt(at.UnixMilli(), 10))
}

// ClearBlockingMarker removes the blocking marker for a device.
func (s *SQLiteStore) ClearBlockingMarker(ctx context.Context, deviceID string) error {
	return s.deleteKV(ctx, deviceID, domain.BlockingMarkerKey)
}

func (s *SQLiteStore) getKV(ctx context.Context, deviceID, key string) (string, error) {
	query := `SELECT value FROM device_kv WHERE device_id = ? AND key = ?`
	var value string
	err := s.db.QueryRowContext(ctx, query, deviceID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("kv %s/%s: %w", deviceID, key, errdefs.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("scan kv row: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) putKV(ctx context.Context, deviceID, key, value string) error {
	query := `
	INSERT INTO device_kv (device_id, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(device_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	_, err := s.execWithRetry(ctx, query, deviceID, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put kv %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) deleteKV(ctx context.Context, deviceID, key string) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM device_kv WHERE device_id = ? AND key = ?`, deviceID, key)
	if err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// InsertSession records a finished focus session.
func (s *SQLiteStore) InsertSession(ctx context.Context, session *domain.FocusSession) error {
	query := `
	INSERT INTO sessions (id, device_id, mode, planned_seconds, actual_seconds, completed, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.execWithRetry(ctx, query,
		session.ID, session.DeviceID, string(session.Mode),
		session.PlannedSeconds, session.ActualSeconds, session.Completed,
		session.StartedAt.Unix(), session.EndedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions for a device, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, deviceID string, limit int) ([]*domain.FocusSession, error) {
	query := `
		SELECT id, device_id, mode, planned_seconds, actual_seconds, completed, started_at, ended_at
		FROM sessions WHERE device_id = ?
		ORDER BY ended_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.FocusSession
	for rows.Next() {
		var sess domain.FocusSession
		var mode string
		var startedAt, endedAt int64

		if err := rows.Scan(
			&sess.ID, &sess.DeviceID, &mode,
			&sess.PlannedSeconds, &sess.ActualSeconds, &sess.Completed,
			&startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		sess.Mode = domain.SessionMode(mode)
		sess.StartedAt = time.Unix(startedAt, 0)
		sess.EndedAt = time.Unix(endedAt, 0)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// DailyTotals aggregates per-day session counts and focus time.
func (s *SQLiteStore) DailyTotals(ctx context.Context, deviceID string, days int) ([]domain.DailyTotal, error) {
	since := time.Now().AddDate(0, 0, -days).Unix()
	query := `
		SELECT date(ended_at, 'unixepoch', 'localtime') AS day,
		       COUNT(*), SUM(actual_seconds)
		FROM sessions
		WHERE device_id = ? AND ended_at >= ?
		GROUP BY day ORDER BY day`

	rows, err := s.db.QueryContext(ctx, query, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("query daily totals: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close daily total rows", "error", closeErr)
		}
	}()

	var totals []domain.DailyTotal
	for rows.Next() {
		var t domain.DailyTotal
		if err := rows.Scan(&t.Date, &t.Sessions, &t.FocusSeconds); err != nil {
			return nil, fmt.Errorf("scan daily total row: %w", err)
		}
		totals = append(totals, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily totals: %w", err)
	}

	return totals, nil
}

// GetProgress retrieves gamification state for a device.
func (s *SQLiteStore) GetProgress(ctx context.Context, deviceID string) (*domain.Progress, error) {
	query := `
		SELECT device_id, xp, level, coins, current_streak, longest_streak,
		       last_active_date, unlocked_pets, created_at, updated_at
		FROM progress WHERE device_id = ?`

	row := s.db.QueryRowContext(ctx, query, deviceID)

	var p domain.Progress
	var pets string
	var createdAt, updatedAt int64

	err := row.Scan(
		&p.DeviceID, &p.XP, &p.Level, &p.Coins,
		&p.CurrentStreak, &p.LongestStreak,
		&p.LastActiveDate, &pets, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("progress for %s: %w", deviceID, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress row: %w", err)
	}

	if err := json.Unmarshal([]byte(pets), &p.UnlockedPets); err != nil {
		return nil, fmt.Errorf("unmarshal unlocked pets: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return &p, nil
}

// UpsertProgress creates or updates gamification state.
func (s *SQLiteStore) UpsertProgress(ctx context.Context, progress *domain.Progress) error {
	pets, err := json.Marshal(progress.UnlockedPets)
	if err != nil {
		return fmt.Errorf("marshal unlocked pets: %w", err)
	}

	query := `
	INSERT INTO progress (
		device_id, xp, level, coins, current_streak, longest_streak,
		last_active_date, unlocked_pets, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		xp = excluded.xp,
		level = excluded.level,
		coins = excluded.coins,
		current_streak = excluded.current_streak,
		longest_streak = excluded.longest_streak,
		last_active_date = excluded.last_active_date,
		unlocked_pets = excluded.unlocked_pets,
		updated_at = excluded.updated_at`

	_, err = s.execWithRetry(ctx, query,
		progress.DeviceID, progress.XP, progress.Level, progress.Coins,
		progress.CurrentStreak, progress.LongestStreak,
		progress.LastActiveDate, string(pets),
		progress.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// ListDevicesWithTimerState returns IDs of devices holding a timer record
// or blocking marker.
func (s *SQLiteStore) ListDevicesWithTimerState(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT device_id FROM device_kv WHERE key IN (?, ?)`

	rows, err := s.db.QueryContext(ctx, query, domain.TimerRecordKey, domain.BlockingMarkerKey)
	if err != nil {
		return nil, fmt.Errorf("query devices with timer state: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close timer state rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices with timer state: %w", err)
	}

	return ids, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
