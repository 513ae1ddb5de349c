package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shutterscope/shutterscope/internal/models"
)

// PostgresStore wraps a pgx connection pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres creates a new connection pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{Pool: pool}, nil
}

// Driver reports the backend name.
func (s *PostgresStore) Driver() string { return DriverPostgres }

// Ping checks the pool is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}

// InsertResult stores a result with its headers, network and console logs.
func (s *PostgresStore) InsertResult(ctx context.Context, r *models.Result) (int64, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO results (url, probed_at, final_url, response_code, response_reason, protocol,
		                      content_length, title, failed, failed_reason, filename)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		r.URL, probedAt(r), r.FinalURL, r.ResponseCode, r.ResponseReason, r.Protocol,
		r.ContentLength, r.Title, r.Failed, r.FailedReason, r.Filename,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting result: %w", err)
	}

	for _, h := range r.Headers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO headers (result_id, key, value) VALUES ($1, $2, $3)`,
			id, h.Key, h.Value,
		); err != nil {
			return 0, fmt.Errorf("inserting header: %w", err)
		}
	}
	for _, n := range r.Network {
		if _, err := tx.Exec(ctx,
			`INSERT INTO network_logs (result_id, request_type, status_code, url, remote_ip, mime_type, time, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, n.RequestType, n.StatusCode, n.URL, n.RemoteIP, n.MIMEType, n.Time, n.Error,
		); err != nil {
			return 0, fmt.Errorf("inserting network log: %w", err)
		}
	}
	for _, c := range r.Console {
		if _, err := tx.Exec(ctx,
			`INSERT INTO console_logs (result_id, type, value) VALUES ($1, $2, $3)`,
			id, c.Type, c.Value,
		); err != nil {
			return 0, fmt.Errorf("inserting console log: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing result: %w", err)
	}
	return id, nil
}

const pgResultColumns = `id, url, probed_at, final_url, response_code, response_reason, protocol,
	content_length, title, failed, failed_reason, filename`

func scanPGResult(row pgx.Row) (*models.Result, error) {
	r := &models.Result{}
	err := row.Scan(&r.ID, &r.URL, &r.ProbedAt, &r.FinalURL, &r.ResponseCode, &r.ResponseReason,
		&r.Protocol, &r.ContentLength, &r.Title, &r.Failed, &r.FailedReason, &r.Filename)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetResult retrieves a result and its child rows.
func (s *PostgresStore) GetResult(ctx context.Context, id int64) (*models.Result, error) {
	r, err := scanPGResult(s.Pool.QueryRow(ctx,
		`SELECT `+pgResultColumns+` FROM results WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting result: %w", err)
	}

	rows, err := s.Pool.Query(ctx, `SELECT key, value FROM headers WHERE result_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing headers: %w", err)
	}
	r.Headers, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Header, error) {
		var h models.Header
		err := row.Scan(&h.Key, &h.Value)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning header: %w", err)
	}

	rows, err = s.Pool.Query(ctx,
		`SELECT request_type, status_code, url, remote_ip, mime_type, COALESCE(time, 'epoch'::timestamptz), error
		 FROM network_logs WHERE result_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing network logs: %w", err)
	}
	r.Network, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.NetworkLog, error) {
		var n models.NetworkLog
		err := row.Scan(&n.RequestType, &n.StatusCode, &n.URL, &n.RemoteIP, &n.MIMEType, &n.Time, &n.Error)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning network log: %w", err)
	}

	rows, err = s.Pool.Query(ctx, `SELECT type, value FROM console_logs WHERE result_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing console logs: %w", err)
	}
	r.Console, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ConsoleLog, error) {
		var c models.ConsoleLog
		err := row.Scan(&c.Type, &c.Value)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning console log: %w", err)
	}
	return r, nil
}

// ListResults returns results newest first, without child rows.
func (s *PostgresStore) ListResults(ctx context.Context, limit, offset int) ([]models.Result, error) {
	limit, offset = clampLimit(limit, offset)
	rows, err := s.Pool.Query(ctx,
		`SELECT `+pgResultColumns+` FROM results ORDER BY probed_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	results := []models.Result{}
	for rows.Next() {
		r, err := scanPGResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// DeleteResult removes a result; child rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteResult(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
