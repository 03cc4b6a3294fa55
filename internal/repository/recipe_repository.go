package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/phuslu/log"

	"github.com/dwalsh/galley/internal/db"
	"github.com/dwalsh/galley/internal/domain"
)

var recipeOrderColumns = map[string]struct{}{
	"created":       {},
	"completed":     {},
	"last_modified": {},
}

type recipeRepository struct {
	conn     *db.Connection
	jobs     JobCreator
	jobTypes domain.JobTypeResolver
	files    InputFileStore
}

// NewRecipeRepository wires the recipe instance manager. Jobs are created
// through the external job-creation contract inside the recipe transaction.
func NewRecipeRepository(conn *db.Connection, jobs JobCreator, jobTypes domain.JobTypeResolver, files InputFileStore) RecipeRepository {
	return &recipeRepository{
		conn:     conn,
		jobs:     jobs,
		jobTypes: jobTypes,
		files:    files,
	}
}

func (r *recipeRepository) Create(ctx context.Context, recipeType domain.RecipeType, event *domain.TriggerEvent, data domain.RecipeData) (domain.Recipe, error) {
	if !recipeType.IsActive {
		return domain.Recipe{}, &domain.PreconditionError{Reason: "recipe type is no longer active"}
	}
	if event == nil || event.ID == uuid.Nil {
		return domain.Recipe{}, &domain.PreconditionError{Reason: "event that triggered recipe creation is required"}
	}

	var created domain.Recipe
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		// Bind to the latest revision at the moment of creation; the binding
		// is permanent even when the type gains newer revisions.
		revision, err := latestRevision(ctx, tx, recipeType.ID)
		if err != nil {
			return err
		}

		if err := data.Validate(revision.Definition); err != nil {
			return err
		}

		dataJSON, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal recipe data: %w", err)
		}

		row := tx.QueryRow(ctx,
			`INSERT INTO recipe (recipe_type_id, recipe_type_rev_id, event_id, data)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, recipe_type_id, recipe_type_rev_id, event_id, data,
			           created, completed, last_modified`,
			recipeType.ID, revision.ID, event.ID, dataJSON)

		recipe, err := scanRecipe(row)
		if err != nil {
			return fmt.Errorf("failed to create recipe: %w", err)
		}

		// One job per DAG node, in declaration order, linked under the node's
		// logical name. Any failure aborts the whole transaction.
		for _, node := range revision.Definition.Jobs {
			jobType, jtErr := r.jobTypes.GetJobType(ctx, node.JobType.Name, node.JobType.Version)
			if jtErr != nil {
				return fmt.Errorf("failed to resolve job type %s: %w", node.JobType, jtErr)
			}

			job, jobErr := r.jobs.CreateJob(ctx, tx, jobType, *event)
			if jobErr != nil {
				return fmt.Errorf("failed to create job for node %q: %w", node.Name, jobErr)
			}

			if _, linkErr := tx.Exec(ctx,
				`INSERT INTO recipe_job (job_id, job_name, recipe_id)
				 VALUES ($1, $2, $3)`,
				job.ID, node.Name, recipe.ID); linkErr != nil {
				if isUniqueViolation(linkErr) {
					return &domain.ConflictError{Resource: "recipe job", Key: job.ID.String()}
				}
				return fmt.Errorf("failed to link job %q to recipe: %w", node.Name, linkErr)
			}
		}

		recipe.RecipeType = &recipeType
		recipe.Revision = &revision
		recipe.Event = event
		created = recipe
		return nil
	})
	if err != nil {
		return domain.Recipe{}, err
	}

	log.Info().Str("recipe", created.ID.String()).
		Str("recipeType", recipeType.Name).
		Int("revision", created.Revision.RevisionNum).
		Msg("recipe created")
	return created, nil
}

// GetLockedRecipeForJob returns the recipe owning the given job with its
// recipe type and revision populated, under an exclusive row lock for
// in-place mutation. Lock order: Recipe first; any job locks come after.
func (r *recipeRepository) GetLockedRecipeForJob(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*domain.Recipe, error) {
	var recipeID uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT recipe_id FROM recipe_job WHERE job_id = $1`, jobID).Scan(&recipeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Not in a recipe.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve recipe for job: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT r.id, r.recipe_type_id, r.recipe_type_rev_id, r.event_id, r.data,
		        r.created, r.completed, r.last_modified,
		        rt.id, rt.name, rt.version, rt.title, rt.description, rt.is_active,
		        rt.definition, rt.trigger_rule_id, rt.created, rt.archived, rt.last_modified,
		        rev.id, rev.recipe_type_id, rev.revision_num, rev.definition, rev.created
		 FROM recipe r
		 JOIN recipe_type rt ON rt.id = r.recipe_type_id
		 JOIN recipe_type_revision rev ON rev.id = r.recipe_type_rev_id
		 WHERE r.id = $1
		 FOR UPDATE OF r`, recipeID)

	recipe, err := scanRecipeWithRelated(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock recipe %s: %w", recipeID, err)
	}
	return &recipe, nil
}

func (r *recipeRepository) GetRecipeJobs(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID, jobsRelated, jobsLock bool) ([]domain.RecipeJob, error) {
	if jobsLock && tx == nil {
		return nil, fmt.Errorf("locking recipe jobs requires a transaction")
	}
	var q db.DBTX = r.conn.Pool
	if tx != nil {
		q = tx
	}

	rows, err := q.Query(ctx,
		`SELECT rj.job_id, rj.job_name, rj.recipe_id,
		        j.id, j.job_type_id, j.event_id, j.status, j.created, j.last_modified
		 FROM recipe_job rj
		 JOIN job j ON j.id = rj.job_id
		 WHERE rj.recipe_id = $1
		 ORDER BY rj.job_name`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe jobs: %w", err)
	}

	recipeJobs := []domain.RecipeJob{}
	jobIDs := []uuid.UUID{}
	for rows.Next() {
		var (
			recipeJob domain.RecipeJob
			job       domain.Job
		)
		if scanErr := rows.Scan(&recipeJob.JobID, &recipeJob.JobName, &recipeJob.RecipeID,
			&job.ID, &job.JobTypeID, &job.EventID, &job.Status, &job.Created, &job.LastModified); scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan recipe job: %w", scanErr)
		}
		recipeJob.Job = &job
		recipeJobs = append(recipeJobs, recipeJob)
		jobIDs = append(jobIDs, recipeJob.JobID)
	}
	rows.Close()
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate recipe jobs: %w", rowsErr)
	}

	if len(recipeJobs) == 0 || (!jobsRelated && !jobsLock) {
		return recipeJobs, nil
	}

	// Re-query the job rows to attach related metadata or to lock them.
	// Jobs are locked in id order so concurrent callers converge; within the
	// entity lock order this holds only Job locks.
	jobQuery := `SELECT j.id, j.job_type_id, j.event_id, j.status, j.created, j.last_modified`
	if jobsRelated {
		jobQuery += `, jt.id, jt.name, jt.version, jt.title, jt.interface, jt.created`
	}
	jobQuery += ` FROM job j`
	if jobsRelated {
		jobQuery += ` JOIN job_type jt ON jt.id = j.job_type_id`
	}
	jobQuery += ` WHERE j.id = ANY($1) ORDER BY j.id`
	if jobsLock {
		jobQuery += ` FOR UPDATE OF j`
	}

	jobRows, err := q.Query(ctx, jobQuery, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe job rows: %w", err)
	}
	defer jobRows.Close()

	jobsByID := make(map[uuid.UUID]*domain.Job, len(jobIDs))
	for jobRows.Next() {
		var (
			job           domain.Job
			jobType       domain.JobType
			title         pgtype.Text
			interfaceJSON []byte
		)
		dest := []any{&job.ID, &job.JobTypeID, &job.EventID, &job.Status, &job.Created, &job.LastModified}
		if jobsRelated {
			dest = append(dest, &jobType.ID, &jobType.Name, &jobType.Version, &title, &interfaceJSON, &jobType.Created)
		}
		if scanErr := jobRows.Scan(dest...); scanErr != nil {
			return nil, fmt.Errorf("failed to scan job: %w", scanErr)
		}
		if jobsRelated {
			jobType.Title = title.String
			if err := json.Unmarshal(interfaceJSON, &jobType.Interface); err != nil {
				return nil, fmt.Errorf("failed to unmarshal job type interface: %w", err)
			}
			job.JobType = &jobType
		}
		jobCopy := job
		jobsByID[job.ID] = &jobCopy
	}
	if rowsErr := jobRows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", rowsErr)
	}

	for i := range recipeJobs {
		if job, ok := jobsByID[recipeJobs[i].JobID]; ok {
			recipeJobs[i].Job = job
		}
	}
	return recipeJobs, nil
}

// GetDetails builds the reporting view of a recipe. Read-only; takes no
// locks and may observe committed-but-stale state.
func (r *recipeRepository) GetDetails(ctx context.Context, recipeID uuid.UUID) (domain.RecipeDetails, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`SELECT r.id, r.recipe_type_id, r.recipe_type_rev_id, r.event_id, r.data,
		        r.created, r.completed, r.last_modified,
		        rt.id, rt.name, rt.version, rt.title, rt.description, rt.is_active,
		        rt.definition, rt.trigger_rule_id, rt.created, rt.archived, rt.last_modified,
		        rev.id, rev.recipe_type_id, rev.revision_num, rev.definition, rev.created,
		        ev.id, ev.type, ev.rule_id, ev.occurred
		 FROM recipe r
		 JOIN recipe_type rt ON rt.id = r.recipe_type_id
		 JOIN recipe_type_revision rev ON rev.id = r.recipe_type_rev_id
		 JOIN trigger_event ev ON ev.id = r.event_id
		 WHERE r.id = $1`, recipeID)

	recipe, event, err := scanRecipeWithEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecipeDetails{}, &domain.NotFoundError{Resource: "recipe", Key: recipeID.String()}
		}
		return domain.RecipeDetails{}, fmt.Errorf("failed to get recipe details: %w", err)
	}
	recipe.Event = &event

	details := domain.RecipeDetails{Recipe: recipe, InputFiles: []domain.InputFile{}}

	if ids := recipe.Data.InputFileIDs(); len(ids) > 0 {
		files, filesErr := r.files.GetFilesByIDs(ctx, ids)
		if filesErr != nil {
			return domain.RecipeDetails{}, fmt.Errorf("failed to resolve input files: %w", filesErr)
		}
		details.InputFiles = files
	}

	jobs, err := r.GetRecipeJobs(ctx, nil, recipeID, true, false)
	if err != nil {
		return domain.RecipeDetails{}, err
	}
	details.Jobs = jobs

	return details, nil
}

func (r *recipeRepository) List(ctx context.Context, filter domain.RecipeFilter) ([]domain.Recipe, error) {
	query := `SELECT r.id, r.recipe_type_id, r.recipe_type_rev_id, r.event_id, r.data,
	                 r.created, r.completed, r.last_modified
	          FROM recipe r`
	var (
		clauses []string
		args    []any
	)
	if len(filter.TypeNames) > 0 {
		query += ` JOIN recipe_type rt ON rt.id = r.recipe_type_id`
		args = append(args, filter.TypeNames)
		clauses = append(clauses, fmt.Sprintf("rt.name = ANY($%d)", len(args)))
	}
	if filter.Started != nil {
		args = append(args, *filter.Started)
		clauses = append(clauses, fmt.Sprintf("r.last_modified >= $%d", len(args)))
	}
	if filter.Ended != nil {
		args = append(args, *filter.Ended)
		clauses = append(clauses, fmt.Sprintf("r.last_modified <= $%d", len(args)))
	}
	if len(filter.TypeIDs) > 0 {
		args = append(args, filter.TypeIDs)
		clauses = append(clauses, fmt.Sprintf("r.recipe_type_id = ANY($%d)", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinAnd(clauses)
	}

	ordering, err := orderClause(filter.Order, recipeOrderColumns, "r.last_modified")
	if err != nil {
		return nil, err
	}
	query += " " + ordering

	rows, err := r.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	result := []domain.Recipe{}
	for rows.Next() {
		recipe, scanErr := scanRecipe(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", scanErr)
		}
		result = append(result, recipe)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate recipes: %w", rowsErr)
	}
	return result, nil
}

func (r *recipeRepository) MarkCompleted(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID, when time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE recipe SET completed = $2, last_modified = now() WHERE id = $1`,
		recipeID, when)
	if err != nil {
		return fmt.Errorf("failed to mark recipe completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "recipe", Key: recipeID.String()}
	}
	return nil
}

func scanRecipe(row pgx.Row) (domain.Recipe, error) {
	var (
		recipe    domain.Recipe
		dataJSON  []byte
		completed pgtype.Timestamptz
	)
	if err := row.Scan(&recipe.ID, &recipe.RecipeTypeID, &recipe.RevisionID, &recipe.EventID,
		&dataJSON, &recipe.Created, &completed, &recipe.LastModified); err != nil {
		return domain.Recipe{}, err
	}
	if err := json.Unmarshal(dataJSON, &recipe.Data); err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to unmarshal recipe data: %w", err)
	}
	if completed.Valid {
		when := completed.Time
		recipe.Completed = &when
	}
	return recipe, nil
}

// scanRecipeWithRelated scans a recipe joined with its recipe type and
// revision columns.
func scanRecipeWithRelated(row pgx.Row) (domain.Recipe, error) {
	var (
		recipe          domain.Recipe
		recipeType      domain.RecipeType
		revision        domain.RecipeTypeRevision
		dataJSON        []byte
		completed       pgtype.Timestamptz
		rtTitle         pgtype.Text
		rtDefJSON       []byte
		rtTriggerRuleID pgtype.UUID
		rtArchived      pgtype.Timestamptz
		revDefJSON      []byte
	)
	if err := row.Scan(
		&recipe.ID, &recipe.RecipeTypeID, &recipe.RevisionID, &recipe.EventID, &dataJSON,
		&recipe.Created, &completed, &recipe.LastModified,
		&recipeType.ID, &recipeType.Name, &recipeType.Version, &rtTitle, &recipeType.Description,
		&recipeType.IsActive, &rtDefJSON, &rtTriggerRuleID, &recipeType.Created, &rtArchived,
		&recipeType.LastModified,
		&revision.ID, &revision.RecipeTypeID, &revision.RevisionNum, &revDefJSON, &revision.Created,
	); err != nil {
		return domain.Recipe{}, err
	}

	if err := json.Unmarshal(dataJSON, &recipe.Data); err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to unmarshal recipe data: %w", err)
	}
	if completed.Valid {
		when := completed.Time
		recipe.Completed = &when
	}

	recipeType.Title = rtTitle.String
	if err := json.Unmarshal(rtDefJSON, &recipeType.Definition); err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to unmarshal recipe type definition: %w", err)
	}
	if rtTriggerRuleID.Valid {
		id, err := uuid.FromBytes(rtTriggerRuleID.Bytes[:])
		if err != nil {
			return domain.Recipe{}, fmt.Errorf("invalid trigger rule identifier: %w", err)
		}
		recipeType.TriggerRuleID = &id
	}
	if rtArchived.Valid {
		when := rtArchived.Time
		recipeType.Archived = &when
	}

	if err := json.Unmarshal(revDefJSON, &revision.Definition); err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to unmarshal revision definition: %w", err)
	}

	recipe.RecipeType = &recipeType
	recipe.Revision = &revision
	return recipe, nil
}

// scanRecipeWithEvent scans the GetDetails row shape: recipe + type +
// revision + trigger event.
func scanRecipeWithEvent(row pgx.Row) (domain.Recipe, domain.TriggerEvent, error) {
	var (
		recipe          domain.Recipe
		recipeType      domain.RecipeType
		revision        domain.RecipeTypeRevision
		event           domain.TriggerEvent
		dataJSON        []byte
		completed       pgtype.Timestamptz
		rtTitle         pgtype.Text
		rtDefJSON       []byte
		rtTriggerRuleID pgtype.UUID
		rtArchived      pgtype.Timestamptz
		revDefJSON      []byte
		eventRuleID     pgtype.UUID
	)
	if err := row.Scan(
		&recipe.ID, &recipe.RecipeTypeID, &recipe.RevisionID, &recipe.EventID, &dataJSON,
		&recipe.Created, &completed, &recipe.LastModified,
		&recipeType.ID, &recipeType.Name, &recipeType.Version, &rtTitle, &recipeType.Description,
		&recipeType.IsActive, &rtDefJSON, &rtTriggerRuleID, &recipeType.Created, &rtArchived,
		&recipeType.LastModified,
		&revision.ID, &revision.RecipeTypeID, &revision.RevisionNum, &revDefJSON, &revision.Created,
		&event.ID, &event.Type, &eventRuleID, &event.Occurred,
	); err != nil {
		return domain.Recipe{}, domain.TriggerEvent{}, err
	}

	if err := json.Unmarshal(dataJSON, &recipe.Data); err != nil {
		return domain.Recipe{}, domain.TriggerEvent{}, fmt.Errorf("failed to unmarshal recipe data: %w", err)
	}
	if completed.Valid {
		when := completed.Time
		recipe.Completed = &when
	}

	recipeType.Title = rtTitle.String
	if err := json.Unmarshal(rtDefJSON, &recipeType.Definition); err != nil {
		return domain.Recipe{}, domain.TriggerEvent{}, fmt.Errorf("failed to unmarshal recipe type definition: %w", err)
	}
	if rtTriggerRuleID.Valid {
		id, err := uuid.FromBytes(rtTriggerRuleID.Bytes[:])
		if err != nil {
			return domain.Recipe{}, domain.TriggerEvent{}, fmt.Errorf("invalid trigger rule identifier: %w", err)
		}
		recipeType.TriggerRuleID = &id
	}
	if rtArchived.Valid {
		when := rtArchived.Time
		recipeType.Archived = &when
	}

	if err := json.Unmarshal(revDefJSON, &revision.Definition); err != nil {
		return domain.Recipe{}, domain.TriggerEvent{}, fmt.Errorf("failed to unmarshal revision definition: %w", err)
	}

	if eventRuleID.Valid {
		id, err := uuid.FromBytes(eventRuleID.Bytes[:])
		if err != nil {
			return domain.Recipe{}, domain.TriggerEvent{}, fmt.Errorf("invalid event rule identifier: %w", err)
		}
		event.RuleID = &id
	}

	recipe.RecipeType = &recipeType
	recipe.Revision = &revision
	return recipe, event, nil
}
