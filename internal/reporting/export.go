package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dwalsh/galley/internal/domain"
)

const timeFormat = "2006-01-02 15:04:05"

// BuildErrorsWorkbook renders the error catalog as an xlsx workbook.
func BuildErrorsWorkbook(errors []domain.Error) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Errors"

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []any{"Name", "Title", "Description", "Category", "Created", "Last Modified"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, entry := range errors {
		row := []any{
			entry.Name,
			entry.Title,
			entry.Description,
			string(entry.Category),
			entry.Created.Format(timeFormat),
			entry.LastModified.Format(timeFormat),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	return f, nil
}

// BuildRecipesWorkbook renders a recipe listing as an xlsx workbook.
func BuildRecipesWorkbook(recipes []domain.Recipe) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Recipes"

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []any{"Recipe ID", "Recipe Type ID", "Revision ID", "Event ID", "Created", "Completed", "Last Modified"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, recipe := range recipes {
		completed := ""
		if recipe.Completed != nil {
			completed = recipe.Completed.Format(timeFormat)
		}
		row := []any{
			recipe.ID.String(),
			recipe.RecipeTypeID.String(),
			recipe.RevisionID.String(),
			recipe.EventID.String(),
			recipe.Created.Format(timeFormat),
			completed,
			recipe.LastModified.Format(timeFormat),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	return f, nil
}
