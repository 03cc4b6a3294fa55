package domain

import (
	"context"
	"fmt"
)

// InputType is the kind of value a recipe input or interface field carries.
type InputType string

const (
	InputTypeProperty InputType = "property"
	InputTypeFile     InputType = "file"
	InputTypeFiles    InputType = "files"
)

func (t InputType) valid() bool {
	switch t {
	case InputTypeProperty, InputTypeFile, InputTypeFiles:
		return true
	}
	return false
}

// satisfies reports whether a value of type t can feed an input declared as
// target. A single file may feed a multi-file input; nothing else converts.
func (t InputType) satisfies(target InputType) bool {
	if t == target {
		return true
	}
	return t == InputTypeFile && target == InputTypeFiles
}

// RecipeInput declares one input the recipe as a whole expects.
type RecipeInput struct {
	Name     string    `json:"name"`
	Type     InputType `json:"type"`
	Required bool      `json:"required"`
}

// JobTypeKey identifies a job type by its natural key.
type JobTypeKey struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (k JobTypeKey) String() string {
	return k.Name + " " + k.Version
}

// InputBinding routes a recipe-level input to one of a node's job inputs.
type InputBinding struct {
	RecipeInput string `json:"recipe_input"`
	JobInput    string `json:"job_input"`
}

// Connection routes a dependency's output to one of the consumer's inputs.
type Connection struct {
	Output string `json:"output"`
	Input  string `json:"input"`
}

// Dependency names another node this node depends on, with the data edges
// between them.
type Dependency struct {
	Name        string       `json:"name"`
	Connections []Connection `json:"connections,omitempty"`
}

// Node is one job in the recipe DAG. Name is the node's logical name within
// the recipe; job type references are resolved at validation time.
type Node struct {
	Name         string         `json:"name"`
	JobType      JobTypeKey     `json:"job_type"`
	RecipeInputs []InputBinding `json:"recipe_inputs,omitempty"`
	Dependencies []Dependency   `json:"dependencies,omitempty"`
}

// Definition is the structured form of a recipe type's DAG template. All
// in-memory logic operates on this type; it is serialized to JSON only at
// the storage boundary.
type Definition struct {
	Version   string        `json:"version,omitempty"`
	InputData []RecipeInput `json:"input_data,omitempty"`
	Jobs      []Node        `json:"jobs"`
}

// ValidationWarning is a non-fatal finding from definition validation.
type ValidationWarning struct {
	ID      string `json:"id"`
	Details string `json:"details"`
}

// JobTypeKeys returns the distinct job type references in declaration order.
func (d Definition) JobTypeKeys() []JobTypeKey {
	seen := make(map[JobTypeKey]struct{})
	var keys []JobTypeKey
	for _, node := range d.Jobs {
		if _, ok := seen[node.JobType]; ok {
			continue
		}
		seen[node.JobType] = struct{}{}
		keys = append(keys, node.JobType)
	}
	return keys
}

// Node returns the node with the given logical name.
func (d Definition) Node(name string) (Node, bool) {
	for _, node := range d.Jobs {
		if node.Name == name {
			return node, true
		}
	}
	return Node{}, false
}

// ValidateInterfaces checks the definition structurally: every node's job
// type reference must resolve through the given resolver, dependency edges
// must form an acyclic graph, and every data edge must be interface
// compatible. The returned error is always an *InvalidDefinitionError naming
// the node or edge that failed.
func (d Definition) ValidateInterfaces(ctx context.Context, resolver JobTypeResolver) error {
	declaredInputs := make(map[string]RecipeInput)
	for _, input := range d.InputData {
		if input.Name == "" {
			return &InvalidDefinitionError{Reason: "recipe input with empty name"}
		}
		if !input.Type.valid() {
			return &InvalidDefinitionError{Reason: fmt.Sprintf("recipe input %q has unknown type %q", input.Name, input.Type)}
		}
		if _, ok := declaredInputs[input.Name]; ok {
			return &InvalidDefinitionError{Reason: fmt.Sprintf("duplicate recipe input %q", input.Name)}
		}
		declaredInputs[input.Name] = input
	}

	if len(d.Jobs) == 0 {
		return &InvalidDefinitionError{Reason: "definition declares no jobs"}
	}

	nodes := make(map[string]Node, len(d.Jobs))
	for _, node := range d.Jobs {
		if node.Name == "" {
			return &InvalidDefinitionError{Reason: "node with empty name"}
		}
		if _, ok := nodes[node.Name]; ok {
			return &InvalidDefinitionError{Node: node.Name, Reason: "duplicate node name"}
		}
		nodes[node.Name] = node
	}

	// Resolve each referenced job type once.
	jobTypes := make(map[JobTypeKey]JobType)
	for _, node := range d.Jobs {
		if _, ok := jobTypes[node.JobType]; ok {
			continue
		}
		jobType, err := resolver.GetJobType(ctx, node.JobType.Name, node.JobType.Version)
		if err != nil {
			return &InvalidDefinitionError{
				Node:   node.Name,
				Reason: fmt.Sprintf("unknown job type %s: %v", node.JobType, err),
			}
		}
		jobTypes[node.JobType] = jobType
	}

	for _, node := range d.Jobs {
		consumer := jobTypes[node.JobType].Interface

		for _, binding := range node.RecipeInputs {
			declared, ok := declaredInputs[binding.RecipeInput]
			if !ok {
				return &InvalidDefinitionError{
					Node:   node.Name,
					Reason: fmt.Sprintf("binds undeclared recipe input %q", binding.RecipeInput),
				}
			}
			target, ok := consumer.Input(binding.JobInput)
			if !ok {
				return &InvalidDefinitionError{
					Node:   node.Name,
					Reason: fmt.Sprintf("job type %s has no input %q", node.JobType, binding.JobInput),
				}
			}
			if !declared.Type.satisfies(target.Type) {
				return &InvalidDefinitionError{
					Node: node.Name,
					Reason: fmt.Sprintf("recipe input %q of type %q cannot feed job input %q of type %q",
						binding.RecipeInput, declared.Type, binding.JobInput, target.Type),
				}
			}
		}

		for _, dep := range node.Dependencies {
			if dep.Name == node.Name {
				return &InvalidDefinitionError{Node: node.Name, Reason: "node depends on itself"}
			}
			producerNode, ok := nodes[dep.Name]
			if !ok {
				return &InvalidDefinitionError{
					Node:   node.Name,
					Reason: fmt.Sprintf("depends on undeclared node %q", dep.Name),
				}
			}
			producer := jobTypes[producerNode.JobType].Interface

			for _, conn := range dep.Connections {
				edge := fmt.Sprintf("%s.%s -> %s.%s", dep.Name, conn.Output, node.Name, conn.Input)
				source, ok := producer.Output(conn.Output)
				if !ok {
					return &InvalidDefinitionError{
						Node:   node.Name,
						Edge:   edge,
						Reason: fmt.Sprintf("job type %s has no output %q", producerNode.JobType, conn.Output),
					}
				}
				target, ok := consumer.Input(conn.Input)
				if !ok {
					return &InvalidDefinitionError{
						Node:   node.Name,
						Edge:   edge,
						Reason: fmt.Sprintf("job type %s has no input %q", node.JobType, conn.Input),
					}
				}
				if !source.Type.satisfies(target.Type) {
					return &InvalidDefinitionError{
						Node:   node.Name,
						Edge:   edge,
						Reason: fmt.Sprintf("output type %q does not satisfy input type %q", source.Type, target.Type),
					}
				}
			}
		}
	}

	if node, ok := d.findCycle(); ok {
		return &InvalidDefinitionError{Node: node, Reason: "dependency cycle"}
	}

	return nil
}

// Warnings reports non-fatal findings: nodes isolated from the rest of the
// graph and recipe inputs no node consumes. Callers should run
// ValidateInterfaces first; Warnings assumes a structurally sound definition.
func (d Definition) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	connected := make(map[string]bool)
	for _, node := range d.Jobs {
		for _, dep := range node.Dependencies {
			connected[node.Name] = true
			connected[dep.Name] = true
		}
	}
	if len(d.Jobs) > 1 {
		for _, node := range d.Jobs {
			if !connected[node.Name] {
				warnings = append(warnings, ValidationWarning{
					ID:      "unreachable_node",
					Details: fmt.Sprintf("node %q is not connected to any other node", node.Name),
				})
			}
		}
	}

	bound := make(map[string]bool)
	for _, node := range d.Jobs {
		for _, binding := range node.RecipeInputs {
			bound[binding.RecipeInput] = true
		}
	}
	for _, input := range d.InputData {
		if !bound[input.Name] {
			warnings = append(warnings, ValidationWarning{
				ID:      "unused_input",
				Details: fmt.Sprintf("recipe input %q is not bound by any node", input.Name),
			})
		}
	}

	return warnings
}

// findCycle walks dependency edges depth-first and returns a node on a cycle
// if one exists.
func (d Definition) findCycle() (string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.Jobs))
	nodes := make(map[string]Node, len(d.Jobs))
	for _, node := range d.Jobs {
		nodes[node.Name] = node
	}

	var visit func(name string) (string, bool)
	visit = func(name string) (string, bool) {
		color[name] = gray
		for _, dep := range nodes[name].Dependencies {
			if _, ok := nodes[dep.Name]; !ok {
				continue
			}
			switch color[dep.Name] {
			case gray:
				return dep.Name, true
			case white:
				if cycle, ok := visit(dep.Name); ok {
					return cycle, true
				}
			}
		}
		color[name] = black
		return "", false
	}

	for _, node := range d.Jobs {
		if color[node.Name] == white {
			if cycle, ok := visit(node.Name); ok {
				return cycle, true
			}
		}
	}
	return "", false
}
