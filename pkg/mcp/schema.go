package mcp

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// mustSchemaFor derives a JSON Schema from a Go struct's field tags. Tool
// input/output types carry `jsonschema:"..."` descriptions the way the
// rest of this codebase's tool definitions do; a generation failure means
// a type was defined wrong, so it panics at server construction time
// rather than surfacing as a runtime tool error.
func mustSchemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T]()
	if err != nil {
		panic(fmt.Sprintf("mcp: schema generation failed: %v", err))
	}
	return schema
}
