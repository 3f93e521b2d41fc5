package blocks

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"gorm.io/datatypes"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks block content against the JSON Schema for its type.
// Schemas are compiled once and are safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the embedded schema of every block type.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(models.BlockTypes))}

	for _, blockType := range models.BlockTypes {
		data, err := schemaFS.ReadFile("schemas/" + blockType + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema for %s: %w", blockType, err)
		}
		schema, err := jsonschema.NewCompiler().Compile(data)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", blockType, err)
		}
		v.schemas[blockType] = schema
	}
	return v, nil
}

// Validate returns an ErrInvalid error when blockType is unknown or content
// does not match its schema.
func (v *Validator) Validate(blockType string, content datatypes.JSON) error {
	schema, ok := v.schemas[blockType]
	if !ok {
		return apierr.Invalid("invalid block type %q (allowed: %s)", blockType, strings.Join(models.BlockTypes, ", "))
	}
	if len(content) == 0 {
		return apierr.Invalid("content is required")
	}

	var doc interface{}
	if err := json.Unmarshal(content, &doc); err != nil {
		return apierr.Invalid("content is not valid JSON")
	}

	result := schema.Validate(doc)
	if !result.IsValid() {
		var errorMessages []string
		for field, evalErr := range result.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(errorMessages)
		return apierr.Invalid("%s content: %s", blockType, strings.Join(errorMessages, "; "))
	}
	return nil
}
