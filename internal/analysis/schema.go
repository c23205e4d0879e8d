package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/swar/internal/model"
)

// Schema is a named JSON Schema document for a model verdict.
type Schema struct {
	Name       string
	Definition map[string]any
}

var (
	percent = map[string]any{"type": "number", "minimum": 0, "maximum": 100}
	boolean = map[string]any{"type": "boolean"}
	list    = map[string]any{
		"type": "array",
		"items": map[string]any{"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "number"},
			map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}},
	}
)

func verdictSchema(name string, extra map[string]any) *Schema {
	props := map[string]any{
		"overallAccuracy":  percent,
		"confidence":       percent,
		"detailedAnalysis": map[string]any{"type": "string"},
		"isFlagged":        boolean,
	}
	for k, v := range extra {
		props[k] = v
	}
	return &Schema{
		Name: name,
		Definition: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   []any{"overallAccuracy", "confidence", "detailedAnalysis", "isFlagged"},
		},
	}
}

var schemas = map[model.AssessmentType]*Schema{
	model.Dyslexia: verdictSchema("dyslexia-verdict", map[string]any{
		"phonemeErrorRate":     percent,
		"phonemeConfusions":    list,
		"syllableStressErrors": boolean,
		"letterReversals":      list,
		"wordSubstitutions":    list,
	}),
	model.Dyscalculia: verdictSchema("dyscalculia-verdict", map[string]any{
		"transcodingErrors":   list,
		"placeValueErrors":    boolean,
		"countingAccuracy":    percent,
		"operationConfusion":  boolean,
		"sequenceErrors":      list,
		"calculationAccuracy": percent,
	}),
}

// SchemaFor returns the verdict schema of an assessment type.
func SchemaFor(t model.AssessmentType) (*Schema, error) {
	s, ok := schemas[t]
	if !ok {
		return nil, fmt.Errorf("no verdict schema for assessment type %q", t)
	}
	return s, nil
}

// ErrInvalidResponse indicates model output that does not conform to the
// verdict schema.
type ErrInvalidResponse struct {
	Content string
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid model response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// schemaCache caches compiled schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validate checks raw JSON against the schema.
func validate(schema *Schema, raw string) error {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if _, ok := parsed.(map[string]any); !ok {
		return &ErrInvalidResponse{Content: raw, Err: errors.New("verdict is not a JSON object")}
	}

	compiled, err := compiledSchema(schema)
	if err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("compile schema %q: %w", schema.Name, err)}
	}
	if err := compiled.Validate(parsed); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("schema validation failed: %w", err)}
	}
	return nil
}

func compiledSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a decoded JSON value, not a Go map with typed slices.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
