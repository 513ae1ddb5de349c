package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shutterscope/shutterscope/internal/models"
)

// codeCount is one row of the response code histogram.
type codeCount struct {
	code  int
	count int64
}

// countedTables maps each snapshot counter to the table it counts.
var countedTables = []struct {
	table string
	label string
	field func(*models.Statistics) *int64
}{
	{"results", "results", func(s *models.Statistics) *int64 { return &s.Results }},
	{"headers", "headers", func(s *models.Statistics) *int64 { return &s.Headers }},
	{"network_logs", "network logs", func(s *models.Statistics) *int64 { return &s.NetworkLogs }},
	{"console_logs", "console logs", func(s *models.Statistics) *int64 { return &s.ConsoleLogs }},
}

// Statistics queries the aggregate snapshot from PostgreSQL.
func (s *PostgresStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{}

	err := s.Pool.QueryRow(ctx,
		`SELECT pg_database_size(current_database())`,
	).Scan(&stats.DBSize)
	if err != nil {
		return nil, fmt.Errorf("measuring database size: %w", err)
	}

	for _, t := range countedTables {
		err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(t.field(stats))
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", t.label, err)
		}
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT response_code, COUNT(*) FROM results GROUP BY response_code ORDER BY response_code`,
	)
	if err != nil {
		return nil, fmt.Errorf("grouping response codes: %w", err)
	}
	defer rows.Close()

	var counts []codeCount
	for rows.Next() {
		var c codeCount
		if err := rows.Scan(&c.code, &c.count); err != nil {
			return nil, fmt.Errorf("scanning response code: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grouping response codes: %w", err)
	}

	stats.ResponseCodeStats = codeStats(counts, stats.Results)
	return stats, nil
}

// Statistics queries the aggregate snapshot from SQLite. The database size is
// the allocated page space of the main file.
func (s *SQLiteStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{}

	err := s.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
	).Scan(&stats.DBSize)
	if err != nil {
		return nil, fmt.Errorf("measuring database size: %w", err)
	}

	for _, t := range countedTables {
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(t.field(stats))
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", t.label, err)
		}
	}

	counts, err := sqliteCodeCounts(ctx, s.db)
	if err != nil {
		return nil, err
	}
	stats.ResponseCodeStats = codeStats(counts, stats.Results)
	return stats, nil
}

func sqliteCodeCounts(ctx context.Context, db *sql.DB) ([]codeCount, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT response_code, COUNT(*) FROM results GROUP BY response_code ORDER BY response_code`,
	)
	if err != nil {
		return nil, fmt.Errorf("grouping response codes: %w", err)
	}
	defer rows.Close()

	var counts []codeCount
	for rows.Next() {
		var c codeCount
		if err := rows.Scan(&c.code, &c.count); err != nil {
			return nil, fmt.Errorf("scanning response code: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grouping response codes: %w", err)
	}
	return counts, nil
}

// codeStats converts grouped counts into chart entries. The result is never
// nil so the JSON field is always an array.
func codeStats(counts []codeCount, total int64) []models.ResponseCodeStat {
	out := make([]models.ResponseCodeStat, 0, len(counts))
	for _, c := range counts {
		out = append(out, models.ResponseCodeStat{
			Code:       c.code,
			Count:      c.count,
			Percentage: models.Percentage(c.count, total),
		})
	}
	return out
}

func probedAt(r *models.Result) time.Time {
	if r.ProbedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.ProbedAt
}
