package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"

	"github.com/dwalsh/galley/internal/domain"
)

// setupErrorName is the generic fallback created when an expected catalog
// entry is missing at lookup time.
const setupErrorName = "setup"

var errorOrderColumns = map[string]struct{}{
	"name":          {},
	"title":         {},
	"category":      {},
	"created":       {},
	"last_modified": {},
}

type errorRepository struct {
	pool     *pgxpool.Pool
	validate *validator.Validate
}

// NewErrorRepository wires the error registry backed by pgxpool.
func NewErrorRepository(pool *pgxpool.Pool) ErrorRepository {
	return &errorRepository{
		pool:     pool,
		validate: validator.New(),
	}
}

func (r *errorRepository) Create(ctx context.Context, params CreateErrorParams) (domain.Error, error) {
	if err := r.validate.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return domain.Error{}, &domain.InvalidDataError{
				Field:  fieldErrs[0].Field(),
				Reason: fmt.Sprintf("fails %q constraint", fieldErrs[0].Tag()),
			}
		}
		return domain.Error{}, fmt.Errorf("failed to validate error fields: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO error (name, title, description, category)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, title, description, category, created, last_modified`,
		params.Name, nullableText(params.Title), params.Description, string(params.Category))

	created, err := scanError(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Error{}, &domain.ConflictError{Resource: "error", Key: params.Name}
		}
		return domain.Error{}, fmt.Errorf("failed to create error: %w", err)
	}
	return created, nil
}

func (r *errorRepository) GetByName(ctx context.Context, name string) (domain.Error, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, title, description, category, created, last_modified
		 FROM error WHERE name = $1`, name)

	found, err := scanError(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Error{}, &domain.NotFoundError{Resource: "error", Key: name}
		}
		return domain.Error{}, fmt.Errorf("failed to get error by name: %w", err)
	}
	return found, nil
}

func (r *errorRepository) List(ctx context.Context, filter domain.ErrorFilter) ([]domain.Error, error) {
	query := `SELECT id, name, title, description, category, created, last_modified FROM error`
	var (
		clauses []string
		args    []any
	)
	if filter.Started != nil {
		args = append(args, *filter.Started)
		clauses = append(clauses, fmt.Sprintf("last_modified >= $%d", len(args)))
	}
	if filter.Ended != nil {
		args = append(args, *filter.Ended)
		clauses = append(clauses, fmt.Sprintf("last_modified <= $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinAnd(clauses)
	}

	ordering, err := orderClause(filter.Order, errorOrderColumns, "last_modified")
	if err != nil {
		return nil, err
	}
	query += " " + ordering

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list errors: %w", err)
	}
	defer rows.Close()

	result := []domain.Error{}
	for rows.Next() {
		entry, scanErr := scanError(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan error: %w", scanErr)
		}
		result = append(result, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate errors: %w", rowsErr)
	}
	return result, nil
}

func (r *errorRepository) GetDatabaseError(ctx context.Context) *domain.Error {
	return r.getSystemError(ctx, "database")
}

func (r *errorRepository) GetFilesystemError(ctx context.Context) *domain.Error {
	return r.getSystemError(ctx, "filesystem-io")
}

func (r *errorRepository) GetNFSError(ctx context.Context) *domain.Error {
	return r.getSystemError(ctx, "nfs")
}

func (r *errorRepository) GetUnknownError(ctx context.Context) *domain.Error {
	return r.getSystemError(ctx, "unknown")
}

// getSystemError returns the built-in error with the given name. A missing
// entry is a setup-time defect: it is logged and healed with the generic
// "setup" fallback. This path runs inside failure handling, so it never
// propagates an error of its own; when even the fallback cannot be produced
// the result is nil and callers must tolerate the absent classification.
func (r *errorRepository) getSystemError(ctx context.Context, name string) *domain.Error {
	found, err := r.GetByName(ctx, name)
	if err == nil {
		return &found
	}
	log.Error().Err(err).Str("name", name).Msg("initial database import missing expected error")

	// A previous lookup may already have healed the catalog.
	if fallback, fbErr := r.GetByName(ctx, setupErrorName); fbErr == nil {
		return &fallback
	}

	created, err := r.Create(ctx, CreateErrorParams{
		Name:        setupErrorName,
		Title:       "Database Setup",
		Description: "Initial database import missing.",
		Category:    domain.ErrorCategorySystem,
	})
	if err != nil {
		// Lost a creation race: the winner's row serves.
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			if fallback, fbErr := r.GetByName(ctx, setupErrorName); fbErr == nil {
				return &fallback
			}
		}
		log.Error().Err(err).Msg("unable to create default error")
		return nil
	}
	return &created
}

func scanError(row pgx.Row) (domain.Error, error) {
	var (
		entry    domain.Error
		title    pgtype.Text
		category string
	)
	if err := row.Scan(&entry.ID, &entry.Name, &title, &entry.Description, &category,
		&entry.Created, &entry.LastModified); err != nil {
		return domain.Error{}, err
	}
	entry.Title = title.String
	entry.Category = domain.ErrorCategory(category)
	return entry, nil
}

func nullableText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, clause := range clauses[1:] {
		out += " AND " + clause
	}
	return out
}
