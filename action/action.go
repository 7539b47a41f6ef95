// Package action implements the schema-validated action (tool) registry the
// researcher calls into: each action declares a name, a JSON Schema for its
// arguments, a predicate deciding whether it is offered for a given
// classification/mode/source set, and an executor producing a typed output.
package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/model"
)

type (
	// Mode selects the researcher's iteration budget.
	Mode string

	// OutputKind discriminates ActionOutput.Data's shape.
	OutputKind string

	// Chunk is a single piece of retrieved content with citation metadata.
	Chunk struct {
		Content  string    `json:"content"`
		Metadata ChunkMeta `json:"metadata"`
	}

	// ChunkMeta carries citation metadata for a Chunk.
	ChunkMeta struct {
		Title     string   `json:"title"`
		URL       string   `json:"url,omitempty"`
		Thumbnail string   `json:"thumbnail,omitempty"`
		Images    []string `json:"images,omitempty"`
		Author    string   `json:"author,omitempty"`
		Date      string   `json:"date,omitempty"`
	}

	// ActionOutput is the result of executing one action call. Exactly one of
	// SearchResults/Reasoning is populated depending on Kind; Done carries no
	// payload. IsError marks the call as a non-fatal execution failure: the
	// researcher loop continues, but the failure is surfaced to the model as
	// a tool-result error so it can adapt.
	ActionOutput struct {
		Kind          OutputKind
		SearchResults []Chunk
		Reasoning     string
		IsError       bool
		ErrorMessage  string
	}

	// Spec declares one action available to the researcher.
	Spec struct {
		// Name is the action's identifier, exposed to the model as a tool name.
		Name Ident
		// Description is shown to the model to decide when to call this action.
		Description string
		// ArgumentSchema is the JSON Schema validating Execute's args.
		ArgumentSchema json.RawMessage
		// EnabledPredicate decides whether this action is offered for the
		// given classification, mode, and enabled source set. A nil
		// predicate means always enabled.
		EnabledPredicate func(c classify.Classification, mode Mode, sources []string) bool
		// Execute runs the action against validated arguments.
		Execute func(ctx context.Context, args json.RawMessage) (ActionOutput, error)
	}

	// Registry holds the set of actions available to a researcher run and
	// validates arguments against each action's schema before execution.
	Registry struct {
		specs    map[Ident]*Spec
		compiled map[Ident]*jsonschema.Schema
	}
)

const (
	// OutputSearchResults carries chunks retrieved by a search-like action.
	OutputSearchResults OutputKind = "search_results"
	// OutputReasoning carries a short natural-language plan surfaced once as
	// an explanation section.
	OutputReasoning OutputKind = "reasoning"
	// OutputDone marks the researcher's termination sentinel.
	OutputDone OutputKind = "done"
)

const (
	// ModeSpeed caps the researcher at 2 iterations.
	ModeSpeed Mode = "speed"
	// ModeBalanced caps the researcher at 6 iterations.
	ModeBalanced Mode = "balanced"
	// ModeQuality caps the researcher at 25 iterations.
	ModeQuality Mode = "quality"
)

// MaxIterations returns the iteration budget for a mode, defaulting to
// ModeBalanced's budget for an unrecognized mode.
func (m Mode) MaxIterations() int {
	switch m {
	case ModeSpeed:
		return 2
	case ModeQuality:
		return 25
	default:
		return 6
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[Ident]*Spec), compiled: make(map[Ident]*jsonschema.Schema)}
}

// Register adds spec to the registry, compiling its argument schema. It
// returns an error if the name is already registered or the schema does not
// compile.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("action: spec requires a name")
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("action: %q already registered", spec.Name)
	}
	if len(spec.ArgumentSchema) > 0 {
		var schemaDoc any
		if err := json.Unmarshal(spec.ArgumentSchema, &schemaDoc); err != nil {
			return fmt.Errorf("action: %q schema: %w", spec.Name, err)
		}
		url := "mem://" + string(spec.Name) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, schemaDoc); err != nil {
			return fmt.Errorf("action: %q schema: %w", spec.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("action: %q schema: %w", spec.Name, err)
		}
		r.compiled[spec.Name] = schema
	}
	r.specs[spec.Name] = spec
	return nil
}

// Enabled returns the subset of registered actions whose EnabledPredicate
// (if any) accepts the given classification, mode, and sources, always
// including the reserved Done action.
func (r *Registry) Enabled(c classify.Classification, mode Mode, sources []string) []*Spec {
	var out []*Spec
	for _, spec := range r.specs {
		if spec.Name == Done || spec.EnabledPredicate == nil || spec.EnabledPredicate(c, mode, sources) {
			out = append(out, spec)
		}
	}
	return out
}

// Definitions converts specs into model.ToolDefinition for use in a model.Request.
func Definitions(specs []*Spec) []*model.ToolDefinition {
	defs := make([]*model.ToolDefinition, 0, len(specs))
	for _, spec := range specs {
		var schema any
		if len(spec.ArgumentSchema) > 0 {
			schema = spec.ArgumentSchema
		}
		defs = append(defs, &model.ToolDefinition{
			Name:        string(spec.Name),
			Description: spec.Description,
			InputSchema: schema,
		})
	}
	return defs
}

// Validate checks args against name's compiled argument schema. Actions
// without a schema always validate.
func (r *Registry) Validate(name Ident, args json.RawMessage) error {
	schema, ok := r.compiled[name]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("action: %q arguments are not valid JSON: %w", name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("action: %q arguments invalid: %w", name, err)
	}
	return nil
}

// Get returns the spec registered under name, if any.
func (r *Registry) Get(name Ident) (*Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

