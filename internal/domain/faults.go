package domain

import "fmt"

// InvalidDefinitionError reports a structural problem in a recipe definition.
// Node identifies the offending DAG node; Edge, when set, identifies the
// dependency connection that failed.
type InvalidDefinitionError struct {
	Node   string
	Edge   string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	if e.Edge != "" {
		return fmt.Sprintf("invalid recipe definition: node %q, edge %q: %s", e.Node, e.Edge, e.Reason)
	}
	if e.Node != "" {
		return fmt.Sprintf("invalid recipe definition: node %q: %s", e.Node, e.Reason)
	}
	return fmt.Sprintf("invalid recipe definition: %s", e.Reason)
}

// InvalidDataError reports a payload that fails schema validation. Field names
// the offending input.
type InvalidDataError struct {
	Field  string
	Reason string
}

func (e *InvalidDataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid data: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid data: %s", e.Reason)
}

// ConflictError reports a duplicate unique key.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

// PreconditionError reports a failed operation precondition, such as an
// inactive recipe type or a missing trigger event.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

// NotFoundError reports an unknown identifier or name.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}
