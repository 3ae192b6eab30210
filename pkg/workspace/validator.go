package workspace

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// descriptorSchema describes the shape a workspace.json must have. It is
// deliberately loose about settings, cursor and node meta so descriptors
// from other builds keep loading.
const descriptorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["schema_version", "workspace", "tree"],
  "properties": {
    "schema_version": {"type": "string"},
    "workspace": {
      "type": "object",
      "required": ["id", "name", "root"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "root": {"type": "string"},
        "created_at": {"type": "string"},
        "updated_at": {"type": "string"}
      }
    },
    "settings": {"type": "object"},
    "tree": {"type": "array"},
    "session": {
      "type": "object",
      "properties": {
        "open_nodes": {"type": "array", "items": {"type": "string"}},
        "active_node": {"type": "string"},
        "cursor": {"type": "object"}
      }
    }
  }
}`

// ValidationResult holds the outcome of descriptor validation.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// ValidateDescriptor checks raw descriptor JSON against the schema. The
// error return covers validation machinery failures (malformed JSON,
// schema compile); shape violations land in the result instead.
func ValidateDescriptor(data []byte) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(descriptorSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("descriptor validation failed: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Problems = append(out.Problems, desc.String())
	}
	return out, nil
}
