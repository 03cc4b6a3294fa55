package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecipeType is a named, versioned DAG template describing which job types
// run and how their inputs and outputs connect. (name, version) is unique.
// Archiving a recipe type permanently blocks new recipes from it.
type RecipeType struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	IsActive      bool       `json:"isActive"`
	Definition    Definition `json:"definition"`
	TriggerRuleID *uuid.UUID `json:"triggerRuleId,omitempty"`
	Created       time.Time  `json:"created"`
	Archived      *time.Time `json:"archived,omitempty"`
	LastModified  time.Time  `json:"lastModified"`
}

// RecipeTypeRevision is an immutable, numbered snapshot of a recipe type's
// definition. Revision numbers start at 1 and increase by exactly one per
// recipe type; a definition change always produces a new revision row.
type RecipeTypeRevision struct {
	ID           uuid.UUID  `json:"id"`
	RecipeTypeID uuid.UUID  `json:"recipeTypeId"`
	RevisionNum  int        `json:"revisionNum"`
	Definition   Definition `json:"definition"`
	Created      time.Time  `json:"created"`
}

// RecipeTypeDetails enriches a recipe type with the job types its current
// definition references. Display only; instantiation never consults it.
type RecipeTypeDetails struct {
	RecipeType
	JobTypes []JobType `json:"jobTypes"`
}

// RecipeTypeFilter narrows recipe type listings.
type RecipeTypeFilter struct {
	Started *time.Time
	Ended   *time.Time
	Order   []string
}
