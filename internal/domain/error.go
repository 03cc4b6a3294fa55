package domain

import (
	"time"

	"github.com/google/uuid"
)

// ErrorCategory classifies the broad cause of a failure.
type ErrorCategory string

const (
	ErrorCategorySystem    ErrorCategory = "SYSTEM"
	ErrorCategoryAlgorithm ErrorCategory = "ALGORITHM"
	ErrorCategoryData      ErrorCategory = "DATA"
)

// Valid reports whether the category is one of the enumerated set.
func (c ErrorCategory) Valid() bool {
	switch c {
	case ErrorCategorySystem, ErrorCategoryAlgorithm, ErrorCategoryData:
		return true
	}
	return false
}

// Error is a classified failure cause from the registry. Name is the stable
// key used by clients for queries; the category is fixed at creation and
// rows are never deleted.
type Error struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description,omitempty"`
	Category     ErrorCategory `json:"category"`
	Created      time.Time     `json:"created"`
	LastModified time.Time     `json:"lastModified"`
}

// ErrorFilter narrows error listings. Started and Ended bound last_modified
// inclusively; Order is a list of whitelisted column names, each optionally
// prefixed with '-' for descending.
type ErrorFilter struct {
	Started *time.Time
	Ended   *time.Time
	Order   []string
}
