package harness

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema derives a JSON schema document from a Go struct type using
// its json and jsonschema_description tags. Additional properties are
// disallowed and definitions are inlined so the document stands alone.
func GenerateSchema[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflect output is always marshalable; a failure here is a
		// programming error in the tool definition.
		panic(fmt.Sprintf("failed to marshal generated schema: %v", err))
	}
	return data
}

// Property describes one field of a hand-written object schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ObjectSchema builds a minimal JSON schema object document from property
// declarations, for tools whose argument shape is defined at runtime.
func ObjectSchema(properties map[string]Property, required ...string) json.RawMessage {
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal object schema: %v", err))
	}
	return data
}
