package domain

import (
	"context"
	"errors"
	"testing"
)

// fakeResolver serves job types from an in-memory map keyed by "name version".
type fakeResolver struct {
	jobTypes map[string]JobType
}

func (f *fakeResolver) GetJobType(_ context.Context, name, version string) (JobType, error) {
	jobType, ok := f.jobTypes[name+" "+version]
	if !ok {
		return JobType{}, &NotFoundError{Resource: "job type", Key: name + " " + version}
	}
	return jobType, nil
}

func testResolver() *fakeResolver {
	return &fakeResolver{jobTypes: map[string]JobType{
		"extract 1.0": {
			Name:    "extract",
			Version: "1.0",
			Interface: JobInterface{
				Inputs:  []InterfaceField{{Name: "source", Type: InputTypeFile}},
				Outputs: []InterfaceField{{Name: "frames", Type: InputTypeFiles}},
			},
		},
		"analyze 2.1": {
			Name:    "analyze",
			Version: "2.1",
			Interface: JobInterface{
				Inputs:  []InterfaceField{{Name: "frames", Type: InputTypeFiles}, {Name: "threshold", Type: InputTypeProperty}},
				Outputs: []InterfaceField{{Name: "report", Type: InputTypeFile}},
			},
		},
	}}
}

func twoNodeDefinition() Definition {
	return Definition{
		Version: "1.0",
		InputData: []RecipeInput{
			{Name: "input_file", Type: InputTypeFile, Required: true},
			{Name: "threshold", Type: InputTypeProperty},
		},
		Jobs: []Node{
			{
				Name:         "extract",
				JobType:      JobTypeKey{Name: "extract", Version: "1.0"},
				RecipeInputs: []InputBinding{{RecipeInput: "input_file", JobInput: "source"}},
			},
			{
				Name:         "analyze",
				JobType:      JobTypeKey{Name: "analyze", Version: "2.1"},
				RecipeInputs: []InputBinding{{RecipeInput: "threshold", JobInput: "threshold"}},
				Dependencies: []Dependency{{
					Name:        "extract",
					Connections: []Connection{{Output: "frames", Input: "frames"}},
				}},
			},
		},
	}
}

func TestValidateInterfaces_ValidTwoNodeDAG(t *testing.T) {
	def := twoNodeDefinition()
	if err := def.ValidateInterfaces(context.Background(), testResolver()); err != nil {
		t.Fatalf("expected definition to validate, got %v", err)
	}
}

func TestValidateInterfaces_UnknownJobType(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[0].JobType = JobTypeKey{Name: "missing", Version: "9.9"}

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
	if invalid.Node != "extract" {
		t.Errorf("expected failure on node %q, got %q", "extract", invalid.Node)
	}
}

func TestValidateInterfaces_DuplicateNodeName(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[1].Name = "extract"
	def.Jobs[1].Dependencies = nil

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
}

func TestValidateInterfaces_UndeclaredDependency(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[1].Dependencies[0].Name = "ghost"

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
	if invalid.Node != "analyze" {
		t.Errorf("expected failure on node %q, got %q", "analyze", invalid.Node)
	}
}

func TestValidateInterfaces_IncompatibleConnection(t *testing.T) {
	// analyze.report (file) cannot feed extract.source declared as threshold
	// (property); rewire extract to depend on analyze with a bad edge.
	resolver := testResolver()
	def := Definition{
		Jobs: []Node{
			{Name: "extract", JobType: JobTypeKey{Name: "extract", Version: "1.0"}},
			{
				Name:    "analyze",
				JobType: JobTypeKey{Name: "analyze", Version: "2.1"},
				Dependencies: []Dependency{{
					Name:        "extract",
					Connections: []Connection{{Output: "frames", Input: "threshold"}},
				}},
			},
		},
	}

	err := def.ValidateInterfaces(context.Background(), resolver)
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
	if invalid.Edge == "" {
		t.Errorf("expected the failing edge to be named, got empty")
	}
}

func TestValidateInterfaces_UnknownOutput(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[1].Dependencies[0].Connections[0].Output = "nonexistent"

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
}

func TestValidateInterfaces_Cycle(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[0].Dependencies = []Dependency{{Name: "analyze"}}

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
}

func TestValidateInterfaces_SelfDependency(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[0].Dependencies = []Dependency{{Name: "extract"}}

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
}

func TestValidateInterfaces_EmptyDefinition(t *testing.T) {
	def := Definition{}
	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
}

func TestValidateInterfaces_UndeclaredRecipeInput(t *testing.T) {
	def := twoNodeDefinition()
	def.Jobs[0].RecipeInputs[0].RecipeInput = "mystery"

	err := def.ValidateInterfaces(context.Background(), testResolver())
	var invalid *InvalidDefinitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
}

func TestWarnings_IsolatedNodeAndUnusedInput(t *testing.T) {
	def := Definition{
		InputData: []RecipeInput{{Name: "unused", Type: InputTypeProperty}},
		Jobs: []Node{
			{Name: "a", JobType: JobTypeKey{Name: "extract", Version: "1.0"}},
			{Name: "b", JobType: JobTypeKey{Name: "extract", Version: "1.0"}, Dependencies: []Dependency{{Name: "a"}}},
			{Name: "loner", JobType: JobTypeKey{Name: "extract", Version: "1.0"}},
		},
	}

	warnings := def.Warnings()
	ids := make(map[string]int)
	for _, w := range warnings {
		ids[w.ID]++
	}
	if ids["unreachable_node"] != 1 {
		t.Errorf("expected one unreachable_node warning, got %d", ids["unreachable_node"])
	}
	if ids["unused_input"] != 1 {
		t.Errorf("expected one unused_input warning, got %d", ids["unused_input"])
	}
}

func TestWarnings_CleanDefinition(t *testing.T) {
	if warnings := twoNodeDefinition().Warnings(); len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestJobTypeKeys_Deduplicates(t *testing.T) {
	def := Definition{Jobs: []Node{
		{Name: "a", JobType: JobTypeKey{Name: "extract", Version: "1.0"}},
		{Name: "b", JobType: JobTypeKey{Name: "extract", Version: "1.0"}},
		{Name: "c", JobType: JobTypeKey{Name: "analyze", Version: "2.1"}},
	}}

	keys := def.JobTypeKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 distinct job type keys, got %d", len(keys))
	}
	if keys[0].Name != "extract" || keys[1].Name != "analyze" {
		t.Errorf("expected declaration order preserved, got %v", keys)
	}
}
