package database

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/xeipuuv/gojsonschema"
)

// SchemasCollection stores one field schema document per project collection,
// keyed by the scoped collection name.
const SchemasCollection = "_schemas"

// Field describes one field of a collection schema.
type Field struct {
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	Required bool     `json:"required,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Enum     []any    `json:"enum,omitempty"`
}

// CollectionSchema is the stored schema of a collection.
type CollectionSchema struct {
	Fields []Field `json:"fields"`
}

// FieldError is one schema violation of a written document.
type FieldError struct {
	Document int    `json:"document"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func loadSchema(ctx context.Context, session datastore.Session, database, collection string) (*CollectionSchema, error) {
	doc, err := session.Collection(database, SchemasCollection).FindOne(ctx, map[string]any{"_id": collection})
	if err != nil {
		return nil, fmt.Errorf("failed to load schema of %s: %w", collection, err)
	}

	if doc == nil {
		return nil, nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var schema CollectionSchema

	err = json.Unmarshal(raw, &schema)
	if err != nil {
		return nil, fmt.Errorf("invalid schema of %s: %w", collection, err)
	}

	if len(schema.Fields) == 0 {
		return nil, nil
	}

	return &schema, nil
}

// jsonSchema renders the field list as a JSON schema. Partial schemas, used
// for updates, drop the required list so only present fields are checked.
func (s *CollectionSchema) jsonSchema(partial bool) map[string]any {
	properties := make(map[string]any, len(s.Fields))
	required := []string{}

	for _, field := range s.Fields {
		property := map[string]any{}

		if field.Type != "" {
			property["type"] = field.Type
		}

		minKey, maxKey := "minimum", "maximum"

		switch field.Type {
		case "string":
			minKey, maxKey = "minLength", "maxLength"
		case "array":
			minKey, maxKey = "minItems", "maxItems"
		}

		if field.Min != nil {
			property[minKey] = bound(minKey, *field.Min)
		}

		if field.Max != nil {
			property[maxKey] = bound(maxKey, *field.Max)
		}

		if len(field.Enum) > 0 {
			property["enum"] = field.Enum
		}

		properties[field.Name] = property

		if field.Required && !partial {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func bound(key string, value float64) any {
	if key == "minimum" || key == "maximum" {
		return value
	}

	return int(math.Max(0, value))
}

// check validates docs and returns every violation found.
func (s *CollectionSchema) check(docs []map[string]any, partial bool) ([]FieldError, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.jsonSchema(partial)))
	if err != nil {
		return nil, fmt.Errorf("invalid collection schema: %w", err)
	}

	var violations []FieldError

	for i, doc := range docs {
		result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, err
		}

		for _, resultErr := range result.Errors() {
			field := resultErr.Field()
			if resultErr.Type() == "required" {
				if name, ok := resultErr.Details()["property"].(string); ok {
					field = name
				}
			}

			violations = append(violations, FieldError{
				Document: i,
				Field:    field,
				Message:  resultErr.Description(),
			})
		}
	}

	return violations, nil
}
