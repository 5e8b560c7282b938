// Package validation checks documents against JSON Schemas.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when a document does not satisfy its schema.
var ErrSchemaViolation = errors.New("schema violation")

// ValidateJSONSchema validates data against schema. A nil or empty schema
// accepts everything.
func ValidateJSONSchema(schema map[string]any, data any) error {
	if len(schema) == 0 {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(problems, "; "))
	}

	return nil
}
