package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shutterscope/shutterscope/internal/models"
)

// SQLiteStore keeps results in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

const sqliteBusyTimeout = 5 * time.Second

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, sqliteBusyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// Keep writes serialized; SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	return &SQLiteStore{db: sqlDB, path: path}, nil
}

// Driver reports the backend name.
func (s *SQLiteStore) Driver() string { return DriverSQLite }

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertResult stores a result with its headers, network and console logs.
func (s *SQLiteStore) InsertResult(ctx context.Context, r *models.Result) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO results (url, probed_at, final_url, response_code, response_reason, protocol,
		                      content_length, title, failed, failed_reason, filename)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.URL, formatTime(probedAt(r)), r.FinalURL, r.ResponseCode, r.ResponseReason, r.Protocol,
		r.ContentLength, r.Title, r.Failed, r.FailedReason, r.Filename,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading result id: %w", err)
	}

	for _, h := range r.Headers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO headers (result_id, key, value) VALUES (?, ?, ?)`,
			id, h.Key, h.Value,
		); err != nil {
			return 0, fmt.Errorf("inserting header: %w", err)
		}
	}
	for _, n := range r.Network {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO network_logs (result_id, request_type, status_code, url, remote_ip, mime_type, time, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, n.RequestType, n.StatusCode, n.URL, n.RemoteIP, n.MIMEType, formatTime(n.Time), n.Error,
		); err != nil {
			return 0, fmt.Errorf("inserting network log: %w", err)
		}
	}
	for _, c := range r.Console {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO console_logs (result_id, type, value) VALUES (?, ?, ?)`,
			id, c.Type, c.Value,
		); err != nil {
			return 0, fmt.Errorf("inserting console log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing result: %w", err)
	}
	return id, nil
}

const sqliteResultColumns = `id, url, probed_at, final_url, response_code, response_reason, protocol,
	content_length, title, failed, failed_reason, filename`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteResult(row rowScanner) (*models.Result, error) {
	r := &models.Result{}
	var probed string
	err := row.Scan(&r.ID, &r.URL, &probed, &r.FinalURL, &r.ResponseCode, &r.ResponseReason,
		&r.Protocol, &r.ContentLength, &r.Title, &r.Failed, &r.FailedReason, &r.Filename)
	if err != nil {
		return nil, err
	}
	r.ProbedAt = parseTime(probed)
	return r, nil
}

// GetResult retrieves a result and its child rows.
func (s *SQLiteStore) GetResult(ctx context.Context, id int64) (*models.Result, error) {
	r, err := scanSQLiteResult(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteResultColumns+` FROM results WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting result: %w", err)
	}

	if r.Headers, err = s.headers(ctx, id); err != nil {
		return nil, err
	}
	if r.Network, err = s.networkLogs(ctx, id); err != nil {
		return nil, err
	}
	if r.Console, err = s.consoleLogs(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) headers(ctx context.Context, id int64) ([]models.Header, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM headers WHERE result_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing headers: %w", err)
	}
	defer rows.Close()

	var headers []models.Header
	for rows.Next() {
		var h models.Header
		if err := rows.Scan(&h.Key, &h.Value); err != nil {
			return nil, fmt.Errorf("scanning header: %w", err)
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (s *SQLiteStore) networkLogs(ctx context.Context, id int64) ([]models.NetworkLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_type, status_code, url, remote_ip, mime_type, time, error
		 FROM network_logs WHERE result_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing network logs: %w", err)
	}
	defer rows.Close()

	var logs []models.NetworkLog
	for rows.Next() {
		var n models.NetworkLog
		var ts string
		if err := rows.Scan(&n.RequestType, &n.StatusCode, &n.URL, &n.RemoteIP, &n.MIMEType, &ts, &n.Error); err != nil {
			return nil, fmt.Errorf("scanning network log: %w", err)
		}
		n.Time = parseTime(ts)
		logs = append(logs, n)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) consoleLogs(ctx context.Context, id int64) ([]models.ConsoleLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, value FROM console_logs WHERE result_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing console logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ConsoleLog
	for rows.Next() {
		var c models.ConsoleLog
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return nil, fmt.Errorf("scanning console log: %w", err)
		}
		logs = append(logs, c)
	}
	return logs, rows.Err()
}

// ListResults returns results newest first, without child rows.
func (s *SQLiteStore) ListResults(ctx context.Context, limit, offset int) ([]models.Result, error) {
	limit, offset = clampLimit(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteResultColumns+` FROM results ORDER BY probed_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	results := []models.Result{}
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// DeleteResult removes a result; child rows go with it via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteResult(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
