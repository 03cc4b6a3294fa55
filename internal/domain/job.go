package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InterfaceField declares one named input or output of a job type's
// interface. Type uses the same vocabulary as recipe input declarations.
type InterfaceField struct {
	Name string    `json:"name"`
	Type InputType `json:"type"`
}

// JobInterface declares what a job type consumes and produces. Connections
// between DAG nodes are validated against these declarations.
type JobInterface struct {
	Inputs  []InterfaceField `json:"inputs,omitempty"`
	Outputs []InterfaceField `json:"outputs,omitempty"`
}

// Input returns the declared input with the given name.
func (i JobInterface) Input(name string) (InterfaceField, bool) {
	for _, field := range i.Inputs {
		if field.Name == name {
			return field, true
		}
	}
	return InterfaceField{}, false
}

// Output returns the declared output with the given name.
func (i JobInterface) Output(name string) (InterfaceField, bool) {
	for _, field := range i.Outputs {
		if field.Name == name {
			return field, true
		}
	}
	return InterfaceField{}, false
}

// JobType describes a kind of job the cluster can run. Owned by the job
// subsystem; referenced here by recipe definitions.
type JobType struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Version   string       `json:"version"`
	Title     string       `json:"title,omitempty"`
	Interface JobInterface `json:"interface"`
	Created   time.Time    `json:"created"`
}

// JobStatus is an opaque enumerated value supplied by the job subsystem.
// Orchestration logic never interprets it beyond equality.
type JobStatus string

// Job is a unit of work created by the job subsystem. Only identity and the
// fields needed for recipe bookkeeping are modeled here.
type Job struct {
	ID           uuid.UUID `json:"id"`
	JobTypeID    uuid.UUID `json:"jobTypeId"`
	JobType      *JobType  `json:"jobType,omitempty"`
	EventID      uuid.UUID `json:"eventId"`
	Status       JobStatus `json:"status"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
}

// TriggerRule is an opaque foreign reference; only existence and identity
// matter to the orchestration core.
type TriggerRule struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	IsActive bool      `json:"isActive"`
	Created  time.Time `json:"created"`
}

// TriggerEvent is the occurrence that caused a recipe to be created.
type TriggerEvent struct {
	ID       uuid.UUID  `json:"id"`
	Type     string     `json:"type"`
	RuleID   *uuid.UUID `json:"ruleId,omitempty"`
	Occurred time.Time  `json:"occurred"`
}

// InputFile is a stored file record referenced by recipe data.
type InputFile struct {
	ID        uuid.UUID `json:"id"`
	FileName  string    `json:"fileName"`
	MediaType string    `json:"mediaType,omitempty"`
	FileSize  int64     `json:"fileSize"`
	Created   time.Time `json:"created"`
}

// JobTypeResolver resolves job type references while validating recipe
// definitions. Implemented by the job subsystem's catalog.
type JobTypeResolver interface {
	GetJobType(ctx context.Context, name, version string) (JobType, error)
}
