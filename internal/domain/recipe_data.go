package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// DataInput supplies a concrete value for one declared recipe input. Exactly
// one of Value, FileID, FileIDs is set, matching the declared type.
type DataInput struct {
	Name    string      `json:"name"`
	Value   string      `json:"value,omitempty"`
	FileID  *uuid.UUID  `json:"file_id,omitempty"`
	FileIDs []uuid.UUID `json:"file_ids,omitempty"`
}

// RecipeData is the recipe-level input payload bound at creation.
type RecipeData struct {
	Version string      `json:"version,omitempty"`
	Inputs  []DataInput `json:"input_data,omitempty"`
}

// Validate checks the payload against the declared inputs of a definition.
// The returned error is always an *InvalidDataError naming the offending
// field.
func (d RecipeData) Validate(def Definition) error {
	declared := make(map[string]RecipeInput, len(def.InputData))
	for _, input := range def.InputData {
		declared[input.Name] = input
	}

	supplied := make(map[string]bool, len(d.Inputs))
	for _, input := range d.Inputs {
		if input.Name == "" {
			return &InvalidDataError{Reason: "input with empty name"}
		}
		if supplied[input.Name] {
			return &InvalidDataError{Field: input.Name, Reason: "supplied more than once"}
		}
		supplied[input.Name] = true

		decl, ok := declared[input.Name]
		if !ok {
			return &InvalidDataError{Field: input.Name, Reason: "not declared by the recipe definition"}
		}

		switch decl.Type {
		case InputTypeProperty:
			if input.Value == "" {
				return &InvalidDataError{Field: input.Name, Reason: "property input requires a value"}
			}
			if input.FileID != nil || len(input.FileIDs) > 0 {
				return &InvalidDataError{Field: input.Name, Reason: "property input cannot reference files"}
			}
		case InputTypeFile:
			if input.FileID == nil {
				return &InvalidDataError{Field: input.Name, Reason: "file input requires a file_id"}
			}
			if input.Value != "" || len(input.FileIDs) > 0 {
				return &InvalidDataError{Field: input.Name, Reason: "file input takes exactly one file_id"}
			}
		case InputTypeFiles:
			if len(input.FileIDs) == 0 {
				return &InvalidDataError{Field: input.Name, Reason: "files input requires file_ids"}
			}
			if input.Value != "" || input.FileID != nil {
				return &InvalidDataError{Field: input.Name, Reason: "files input takes only file_ids"}
			}
		default:
			return &InvalidDataError{Field: input.Name, Reason: fmt.Sprintf("declared with unknown type %q", decl.Type)}
		}
	}

	for _, input := range def.InputData {
		if input.Required && !supplied[input.Name] {
			return &InvalidDataError{Field: input.Name, Reason: "required input is missing"}
		}
	}

	return nil
}

// InputFileIDs collects every file reference in the payload, in declaration
// order, without duplicates.
func (d RecipeData) InputFileIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, input := range d.Inputs {
		if input.FileID != nil {
			add(*input.FileID)
		}
		for _, id := range input.FileIDs {
			add(id)
		}
	}
	return ids
}
