package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwalsh/galley/internal/domain"
)

type logRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository wires the append-only audit log backed by pgxpool.
func NewLogRepository(pool *pgxpool.Pool) LogRepository {
	return &logRepository{pool: pool}
}

func (r *logRepository) Record(ctx context.Context, entry domain.LogEntry) error {
	var stacktrace pgtype.Text
	if entry.Stacktrace != nil {
		stacktrace = pgtype.Text{String: *entry.Stacktrace, Valid: true}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO log_entry (host, level, message, stacktrace)
		 VALUES ($1, $2, $3, $4)`,
		entry.Host, entry.Level, entry.Message, stacktrace)
	if err != nil {
		return fmt.Errorf("failed to record log entry: %w", err)
	}
	return nil
}

func (r *logRepository) List(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error) {
	query := `SELECT id, host, level, message, created, stacktrace FROM log_entry`
	var (
		clauses []string
		args    []any
	)
	if filter.Started != nil {
		args = append(args, *filter.Started)
		clauses = append(clauses, fmt.Sprintf("created >= $%d", len(args)))
	}
	if filter.Ended != nil {
		args = append(args, *filter.Ended)
		clauses = append(clauses, fmt.Sprintf("created <= $%d", len(args)))
	}
	if len(filter.Levels) > 0 {
		args = append(args, filter.Levels)
		clauses = append(clauses, fmt.Sprintf("level = ANY($%d)", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinAnd(clauses)
	}
	query += " ORDER BY created DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LogEntry{}
	for rows.Next() {
		var (
			entry      domain.LogEntry
			stacktrace pgtype.Text
		)
		if scanErr := rows.Scan(&entry.ID, &entry.Host, &entry.Level, &entry.Message,
			&entry.Created, &stacktrace); scanErr != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", scanErr)
		}
		if stacktrace.Valid {
			value := stacktrace.String
			entry.Stacktrace = &value
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate log entries: %w", rowsErr)
	}
	return entries, nil
}
