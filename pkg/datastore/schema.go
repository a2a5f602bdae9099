package datastore

// Operations lists the supported datastore operations, accepted by datastore nodes.
var Operations = []string{
	"findOne", "findMany", "insertOne", "insertMany",
	"updateOne", "updateMany", "deleteOne", "deleteMany",
}

// OperationSchema builds the schema shared by datastore nodes, adding extra properties.
func OperationSchema(extra map[string]any) map[string]any {
	properties := map[string]any{
		"collection": map[string]any{"type": "string", "minLength": 1},
		"operation": map[string]any{
			"type": "string",
			"enum": Operations,
		},
		"query": map[string]any{
			"description": "Filter document; placeholders are resolved",
			"examples":    []any{map[string]any{"email": "{{input.email}}"}},
		},
		"data": map[string]any{
			"description": "Document, array of documents or update document",
		},
		"options": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "minimum": 0},
				"skip":  map[string]any{"type": "integer", "minimum": 0},
				"sort": map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "integer", "enum": []int{-1, 1}},
				},
			},
		},
	}

	for k, v := range extra {
		properties[k] = v
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{"collection", "operation"},
	}
}
