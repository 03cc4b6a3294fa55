package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dwalsh/galley/internal/domain"
)

// ErrorRepository is the registry of classified failure causes.
type ErrorRepository interface {
	// Create persists a new error. Fails with *domain.InvalidDataError when a
	// field violates schema and *domain.ConflictError when the name is taken.
	Create(ctx context.Context, params CreateErrorParams) (domain.Error, error)
	// GetByName is the natural-key lookup used for fixture re-identification.
	GetByName(ctx context.Context, name string) (domain.Error, error)
	List(ctx context.Context, filter domain.ErrorFilter) ([]domain.Error, error)

	// System-error lookups never return an error: a missing catalog entry is
	// healed with a generic fallback, and when even that fails the result is
	// nil. They run on failure-handling paths where raising would replace the
	// original failure.
	GetDatabaseError(ctx context.Context) *domain.Error
	GetFilesystemError(ctx context.Context) *domain.Error
	GetNFSError(ctx context.Context) *domain.Error
	GetUnknownError(ctx context.Context) *domain.Error
}

// CreateErrorParams carries the fields for a new registry entry.
type CreateErrorParams struct {
	Name        string               `json:"name" validate:"required,max=50"`
	Title       string               `json:"title" validate:"max=50"`
	Description string               `json:"description" validate:"max=250"`
	Category    domain.ErrorCategory `json:"category" validate:"required,oneof=SYSTEM ALGORITHM DATA"`
}

// LogRepository stores append-only audit records.
type LogRepository interface {
	Record(ctx context.Context, entry domain.LogEntry) error
	List(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error)
}

// RecipeTypeRepository is the catalog of versioned recipe DAG templates.
type RecipeTypeRepository interface {
	// Create validates the definition, persists the recipe type, and creates
	// revision 1 holding the exact definition snapshot, all in one
	// transaction. Nothing persists on a validation failure.
	Create(ctx context.Context, params CreateRecipeTypeParams) (domain.RecipeType, error)
	// Validate runs the same structural validation side-effect-free and
	// returns non-fatal warnings.
	Validate(ctx context.Context, definition domain.Definition) ([]domain.ValidationWarning, error)
	// UpdateDefinition replaces the definition and creates the next revision.
	// The recipe type row stays exclusively locked for the whole
	// read-latest-revision, compute-next-number, insert sequence.
	UpdateDefinition(ctx context.Context, id uuid.UUID, definition domain.Definition) (domain.RecipeTypeRevision, error)
	// Archive permanently blocks new recipes from this type.
	Archive(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.RecipeType, error)
	GetByNameVersion(ctx context.Context, name, version string) (domain.RecipeType, error)
	GetLatestRevision(ctx context.Context, recipeTypeID uuid.UUID) (domain.RecipeTypeRevision, error)
	List(ctx context.Context, filter domain.RecipeTypeFilter) ([]domain.RecipeType, error)
	// GetDetails enriches a recipe type with the job types its current
	// definition references. Display only.
	GetDetails(ctx context.Context, id uuid.UUID) (domain.RecipeTypeDetails, error)
}

// CreateRecipeTypeParams carries the fields for a new recipe type.
type CreateRecipeTypeParams struct {
	Name          string `validate:"required,max=50"`
	Version       string `validate:"required,max=50"`
	Title         string `validate:"max=50"`
	Description   string `validate:"max=500"`
	Definition    domain.Definition
	TriggerRuleID *uuid.UUID
}

// RecipeRepository instantiates and reads recipes.
type RecipeRepository interface {
	// Create instantiates a recipe and all of its constituent jobs in one
	// atomic transaction: bind the latest revision, validate the data against
	// it, persist the recipe, then create one job per DAG node in declaration
	// order and link each under its logical name.
	Create(ctx context.Context, recipeType domain.RecipeType, event *domain.TriggerEvent, data domain.RecipeData) (domain.Recipe, error)
	// GetLockedRecipeForJob resolves the recipe owning the given job under an
	// exclusive row lock, with recipe type and revision populated. A job with
	// no recipe returns (nil, nil); that is a valid state, not an error.
	GetLockedRecipeForJob(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*domain.Recipe, error)
	// GetRecipeJobs returns the recipe's job links with job rows populated.
	// jobsRelated also populates job type metadata; jobsLock places each job
	// under an exclusive row lock. tx may be nil for unlocked reads.
	GetRecipeJobs(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID, jobsRelated, jobsLock bool) ([]domain.RecipeJob, error)
	// GetDetails is the read-only enrichment with input files and jobs.
	GetDetails(ctx context.Context, recipeID uuid.UUID) (domain.RecipeDetails, error)
	List(ctx context.Context, filter domain.RecipeFilter) ([]domain.Recipe, error)
	// MarkCompleted records when every job in the recipe finished. The caller
	// must hold the recipe row lock (GetLockedRecipeForJob).
	MarkCompleted(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID, when time.Time) error
}

// JobCreator is the consumed job-creation contract. CreateJob must be
// callable inside the caller's transaction; its failure aborts recipe
// creation.
type JobCreator interface {
	CreateJob(ctx context.Context, tx pgx.Tx, jobType domain.JobType, event domain.TriggerEvent) (domain.Job, error)
}

// JobTypeCatalog reads job type metadata from the job subsystem.
type JobTypeCatalog interface {
	domain.JobTypeResolver
	ListJobTypes(ctx context.Context) ([]domain.JobType, error)
}

// InputFileStore is the consumed read-only lookup of stored file records.
type InputFileStore interface {
	GetFilesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.InputFile, error)
}
