package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func dataDefinition() Definition {
	return Definition{
		InputData: []RecipeInput{
			{Name: "source", Type: InputTypeFile, Required: true},
			{Name: "threshold", Type: InputTypeProperty},
			{Name: "extras", Type: InputTypeFiles},
		},
	}
}

func TestRecipeDataValidate_Valid(t *testing.T) {
	fileID := uuid.New()
	data := RecipeData{Inputs: []DataInput{
		{Name: "source", FileID: &fileID},
		{Name: "threshold", Value: "0.75"},
	}}

	if err := data.Validate(dataDefinition()); err != nil {
		t.Fatalf("expected data to validate, got %v", err)
	}
}

func TestRecipeDataValidate_MissingRequired(t *testing.T) {
	data := RecipeData{Inputs: []DataInput{{Name: "threshold", Value: "0.75"}}}

	err := data.Validate(dataDefinition())
	var invalid *InvalidDataError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDataError, got %v", err)
	}
	if invalid.Field != "source" {
		t.Errorf("expected failure on field %q, got %q", "source", invalid.Field)
	}
}

func TestRecipeDataValidate_UndeclaredInput(t *testing.T) {
	fileID := uuid.New()
	data := RecipeData{Inputs: []DataInput{
		{Name: "source", FileID: &fileID},
		{Name: "mystery", Value: "x"},
	}}

	err := data.Validate(dataDefinition())
	var invalid *InvalidDataError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDataError, got %v", err)
	}
	if invalid.Field != "mystery" {
		t.Errorf("expected failure on field %q, got %q", "mystery", invalid.Field)
	}
}

func TestRecipeDataValidate_WrongKind(t *testing.T) {
	fileID := uuid.New()
	cases := []struct {
		name  string
		input DataInput
	}{
		{"property with file", DataInput{Name: "threshold", FileID: &fileID, Value: "1"}},
		{"file without id", DataInput{Name: "source", Value: "not-a-file"}},
		{"files without ids", DataInput{Name: "extras"}},
		{"file with list", DataInput{Name: "source", FileID: &fileID, FileIDs: []uuid.UUID{fileID}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := RecipeData{Inputs: []DataInput{tc.input}}
			err := data.Validate(dataDefinition())
			var invalid *InvalidDataError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidDataError, got %v", err)
			}
		})
	}
}

func TestRecipeDataValidate_DuplicateInput(t *testing.T) {
	fileID := uuid.New()
	data := RecipeData{Inputs: []DataInput{
		{Name: "source", FileID: &fileID},
		{Name: "source", FileID: &fileID},
	}}

	err := data.Validate(dataDefinition())
	var invalid *InvalidDataError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDataError, got %v", err)
	}
}

func TestInputFileIDs_CollectsAndDeduplicates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	data := RecipeData{Inputs: []DataInput{
		{Name: "source", FileID: &a},
		{Name: "extras", FileIDs: []uuid.UUID{a, b}},
	}}

	ids := data.InputFileIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct file ids, got %d", len(ids))
	}
	if ids[0] != a || ids[1] != b {
		t.Errorf("expected declaration order [%s %s], got %v", a, b, ids)
	}
}

func TestInputFileIDs_Empty(t *testing.T) {
	data := RecipeData{Inputs: []DataInput{{Name: "threshold", Value: "1"}}}
	if ids := data.InputFileIDs(); len(ids) != 0 {
		t.Fatalf("expected no file ids, got %v", ids)
	}
}
