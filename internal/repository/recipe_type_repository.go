package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/phuslu/log"

	"github.com/dwalsh/galley/internal/db"
	"github.com/dwalsh/galley/internal/domain"
)

var recipeTypeOrderColumns = map[string]struct{}{
	"name":          {},
	"version":       {},
	"title":         {},
	"created":       {},
	"last_modified": {},
}

type recipeTypeRepository struct {
	conn     *db.Connection
	jobTypes domain.JobTypeResolver
	validate *validator.Validate
}

// NewRecipeTypeRepository wires the recipe type catalog. Job type references
// in definitions are resolved through the given resolver.
func NewRecipeTypeRepository(conn *db.Connection, jobTypes domain.JobTypeResolver) RecipeTypeRepository {
	return &recipeTypeRepository{
		conn:     conn,
		jobTypes: jobTypes,
		validate: validator.New(),
	}
}

func (r *recipeTypeRepository) Create(ctx context.Context, params CreateRecipeTypeParams) (domain.RecipeType, error) {
	if err := r.validate.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return domain.RecipeType{}, &domain.InvalidDataError{
				Field:  fieldErrs[0].Field(),
				Reason: fmt.Sprintf("fails %q constraint", fieldErrs[0].Tag()),
			}
		}
		return domain.RecipeType{}, fmt.Errorf("failed to validate recipe type fields: %w", err)
	}

	// Fatal structural validation happens before anything is persisted.
	if err := params.Definition.ValidateInterfaces(ctx, r.jobTypes); err != nil {
		return domain.RecipeType{}, err
	}

	definitionJSON, err := json.Marshal(params.Definition)
	if err != nil {
		return domain.RecipeType{}, fmt.Errorf("failed to marshal definition: %w", err)
	}

	var created domain.RecipeType
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO recipe_type (name, version, title, description, definition, trigger_rule_id)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, name, version, title, description, is_active, definition,
			           trigger_rule_id, created, archived, last_modified`,
			params.Name, params.Version, nullableText(params.Title), params.Description,
			definitionJSON, params.TriggerRuleID)

		recipeType, scanErr := scanRecipeType(row)
		if scanErr != nil {
			return scanErr
		}

		// First revision, same atomic unit. The row is invisible to other
		// transactions until commit, so no lock is needed here.
		if _, revErr := createRevision(ctx, tx, recipeType.ID, definitionJSON); revErr != nil {
			return revErr
		}

		created = recipeType
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RecipeType{}, &domain.ConflictError{
				Resource: "recipe type",
				Key:      params.Name + " " + params.Version,
			}
		}
		var invalid *domain.InvalidDefinitionError
		if errors.As(err, &invalid) {
			return domain.RecipeType{}, err
		}
		return domain.RecipeType{}, fmt.Errorf("failed to create recipe type: %w", err)
	}

	log.Info().Str("name", created.Name).Str("version", created.Version).Msg("recipe type created")
	return created, nil
}

func (r *recipeTypeRepository) Validate(ctx context.Context, definition domain.Definition) ([]domain.ValidationWarning, error) {
	if err := definition.ValidateInterfaces(ctx, r.jobTypes); err != nil {
		return nil, err
	}
	return definition.Warnings(), nil
}

// UpdateDefinition holds an exclusive lock on the recipe type row for the
// entire read-latest-revision, compute-next-number, insert sequence.
// Without the lock two concurrent updates could compute the same revision
// number. Lock order: RecipeType only.
func (r *recipeTypeRepository) UpdateDefinition(ctx context.Context, id uuid.UUID, definition domain.Definition) (domain.RecipeTypeRevision, error) {
	if err := definition.ValidateInterfaces(ctx, r.jobTypes); err != nil {
		return domain.RecipeTypeRevision{}, err
	}

	definitionJSON, err := json.Marshal(definition)
	if err != nil {
		return domain.RecipeTypeRevision{}, fmt.Errorf("failed to marshal definition: %w", err)
	}

	var revision domain.RecipeTypeRevision
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var lockedID uuid.UUID
		if lockErr := tx.QueryRow(ctx,
			`SELECT id FROM recipe_type WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID); lockErr != nil {
			if errors.Is(lockErr, pgx.ErrNoRows) {
				return &domain.NotFoundError{Resource: "recipe type", Key: id.String()}
			}
			return fmt.Errorf("failed to lock recipe type: %w", lockErr)
		}

		if _, updErr := tx.Exec(ctx,
			`UPDATE recipe_type SET definition = $2, last_modified = now() WHERE id = $1`,
			id, definitionJSON); updErr != nil {
			return fmt.Errorf("failed to update definition: %w", updErr)
		}

		rev, revErr := createRevision(ctx, tx, id, definitionJSON)
		if revErr != nil {
			return revErr
		}
		revision = rev
		return nil
	})
	if err != nil {
		return domain.RecipeTypeRevision{}, err
	}

	log.Info().Str("recipeType", id.String()).Int("revision", revision.RevisionNum).Msg("recipe type definition updated")
	return revision, nil
}

func (r *recipeTypeRepository) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx,
		`UPDATE recipe_type
		 SET is_active = FALSE, archived = COALESCE(archived, now()), last_modified = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive recipe type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "recipe type", Key: id.String()}
	}
	return nil
}

func (r *recipeTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RecipeType, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`SELECT id, name, version, title, description, is_active, definition,
		        trigger_rule_id, created, archived, last_modified
		 FROM recipe_type WHERE id = $1`, id)

	recipeType, err := scanRecipeType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecipeType{}, &domain.NotFoundError{Resource: "recipe type", Key: id.String()}
		}
		return domain.RecipeType{}, fmt.Errorf("failed to get recipe type: %w", err)
	}
	return recipeType, nil
}

func (r *recipeTypeRepository) GetByNameVersion(ctx context.Context, name, version string) (domain.RecipeType, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`SELECT id, name, version, title, description, is_active, definition,
		        trigger_rule_id, created, archived, last_modified
		 FROM recipe_type WHERE name = $1 AND version = $2`, name, version)

	recipeType, err := scanRecipeType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecipeType{}, &domain.NotFoundError{Resource: "recipe type", Key: name + " " + version}
		}
		return domain.RecipeType{}, fmt.Errorf("failed to get recipe type by name: %w", err)
	}
	return recipeType, nil
}

func (r *recipeTypeRepository) GetLatestRevision(ctx context.Context, recipeTypeID uuid.UUID) (domain.RecipeTypeRevision, error) {
	return latestRevision(ctx, r.conn.Pool, recipeTypeID)
}

func (r *recipeTypeRepository) List(ctx context.Context, filter domain.RecipeTypeFilter) ([]domain.RecipeType, error) {
	query := `SELECT id, name, version, title, description, is_active, definition,
	                 trigger_rule_id, created, archived, last_modified
	          FROM recipe_type`
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

	ordering, err := orderClause(filter.Order, recipeTypeOrderColumns, "last_modified")
	if err != nil {
		return nil, err
	}
	query += " " + ordering

	rows, err := r.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipe types: %w", err)
	}
	defer rows.Close()

	result := []domain.RecipeType{}
	for rows.Next() {
		recipeType, scanErr := scanRecipeType(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan recipe type: %w", scanErr)
		}
		result = append(result, recipeType)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate recipe types: %w", rowsErr)
	}
	return result, nil
}

func (r *recipeTypeRepository) GetDetails(ctx context.Context, id uuid.UUID) (domain.RecipeTypeDetails, error) {
	recipeType, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.RecipeTypeDetails{}, err
	}

	details := domain.RecipeTypeDetails{RecipeType: recipeType, JobTypes: []domain.JobType{}}
	for _, key := range recipeType.Definition.JobTypeKeys() {
		jobType, jtErr := r.jobTypes.GetJobType(ctx, key.Name, key.Version)
		if jtErr != nil {
			return domain.RecipeTypeDetails{}, fmt.Errorf("failed to resolve job type %s: %w", key, jtErr)
		}
		details.JobTypes = append(details.JobTypes, jobType)
	}
	return details, nil
}

// createRevision inserts the next revision for a recipe type. Except during
// initial creation, the caller must hold a FOR UPDATE lock on the recipe
// type row; the unique (recipe_type_id, revision_num) index is the backstop.
func createRevision(ctx context.Context, tx pgx.Tx, recipeTypeID uuid.UUID, definitionJSON []byte) (domain.RecipeTypeRevision, error) {
	nextNum := 1
	last, err := latestRevision(ctx, tx, recipeTypeID)
	if err == nil {
		nextNum = last.RevisionNum + 1
	} else {
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			return domain.RecipeTypeRevision{}, err
		}
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO recipe_type_revision (recipe_type_id, revision_num, definition)
		 VALUES ($1, $2, $3)
		 RETURNING id, recipe_type_id, revision_num, definition, created`,
		recipeTypeID, nextNum, definitionJSON)

	revision, err := scanRevision(row)
	if err != nil {
		return domain.RecipeTypeRevision{}, fmt.Errorf("failed to create recipe type revision: %w", err)
	}
	return revision, nil
}

// latestRevision returns the highest-numbered revision for a recipe type.
func latestRevision(ctx context.Context, q db.DBTX, recipeTypeID uuid.UUID) (domain.RecipeTypeRevision, error) {
	row := q.QueryRow(ctx,
		`SELECT id, recipe_type_id, revision_num, definition, created
		 FROM recipe_type_revision
		 WHERE recipe_type_id = $1
		 ORDER BY revision_num DESC
		 LIMIT 1`, recipeTypeID)

	revision, err := scanRevision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecipeTypeRevision{}, &domain.NotFoundError{
				Resource: "recipe type revision",
				Key:      recipeTypeID.String(),
			}
		}
		return domain.RecipeTypeRevision{}, fmt.Errorf("failed to get latest revision: %w", err)
	}
	return revision, nil
}

func scanRecipeType(row pgx.Row) (domain.RecipeType, error) {
	var (
		recipeType     domain.RecipeType
		title          pgtype.Text
		definitionJSON []byte
		triggerRuleID  pgtype.UUID
		archived       pgtype.Timestamptz
	)
	if err := row.Scan(&recipeType.ID, &recipeType.Name, &recipeType.Version, &title,
		&recipeType.Description, &recipeType.IsActive, &definitionJSON, &triggerRuleID,
		&recipeType.Created, &archived, &recipeType.LastModified); err != nil {
		return domain.RecipeType{}, err
	}
	recipeType.Title = title.String
	if err := json.Unmarshal(definitionJSON, &recipeType.Definition); err != nil {
		return domain.RecipeType{}, fmt.Errorf("failed to unmarshal definition for recipe type %s: %w", recipeType.Name, err)
	}
	if triggerRuleID.Valid {
		id, err := uuid.FromBytes(triggerRuleID.Bytes[:])
		if err != nil {
			return domain.RecipeType{}, fmt.Errorf("invalid trigger rule identifier: %w", err)
		}
		recipeType.TriggerRuleID = &id
	}
	if archived.Valid {
		when := archived.Time
		recipeType.Archived = &when
	}
	return recipeType, nil
}

func scanRevision(row pgx.Row) (domain.RecipeTypeRevision, error) {
	var (
		revision       domain.RecipeTypeRevision
		definitionJSON []byte
	)
	if err := row.Scan(&revision.ID, &revision.RecipeTypeID, &revision.RevisionNum,
		&definitionJSON, &revision.Created); err != nil {
		return domain.RecipeTypeRevision{}, err
	}
	if err := json.Unmarshal(definitionJSON, &revision.Definition); err != nil {
		return domain.RecipeTypeRevision{}, fmt.Errorf("failed to unmarshal revision definition: %w", err)
	}
	return revision, nil
}
