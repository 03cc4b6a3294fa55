package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recipe is one instantiation of a recipe type, bound permanently to the
// revision that was latest at creation time. The binding never changes, even
// when the parent type gains new revisions, so a recipe always replays
// against the definition it was created with. Mutating a recipe row requires
// an exclusive row lock (see GetLockedRecipeForJob).
type Recipe struct {
	ID           uuid.UUID           `json:"id"`
	RecipeTypeID uuid.UUID           `json:"recipeTypeId"`
	RecipeType   *RecipeType         `json:"recipeType,omitempty"`
	RevisionID   uuid.UUID           `json:"revisionId"`
	Revision     *RecipeTypeRevision `json:"revision,omitempty"`
	EventID      uuid.UUID           `json:"eventId"`
	Event        *TriggerEvent       `json:"event,omitempty"`
	Data         RecipeData          `json:"data"`
	Created      time.Time           `json:"created"`
	Completed    *time.Time          `json:"completed,omitempty"`
	LastModified time.Time           `json:"lastModified"`
}

// RecipeJob links one DAG node, by its logical name within the recipe, to
// the concrete job created to execute it. A job belongs to at most one
// recipe system-wide.
type RecipeJob struct {
	JobID    uuid.UUID `json:"jobId"`
	Job      *Job      `json:"job,omitempty"`
	JobName  string    `json:"jobName"`
	RecipeID uuid.UUID `json:"recipeId"`
}

// RecipeDetails is the read-only enrichment of a recipe for reporting:
// resolved input files and the full job list. Built without locks.
type RecipeDetails struct {
	Recipe
	InputFiles []InputFile `json:"inputFiles"`
	Jobs       []RecipeJob `json:"jobs"`
}

// RecipeFilter narrows recipe listings.
type RecipeFilter struct {
	Started   *time.Time
	Ended     *time.Time
	TypeIDs   []uuid.UUID
	TypeNames []string
	Order     []string
}
