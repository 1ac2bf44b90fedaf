package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflectSchema derives a tool parameter schema from an args struct.
// Fields without omitempty become required properties.
func reflectSchema(v any) map[string]any {
	r := &jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(v)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(m, "$id")
	return m
}
