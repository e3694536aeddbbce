// Copyright 2025 James Ross
package frontendworker

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// workflowSpecSchema is the structural validation gate for submitted specs
// (§7 error category 1: validation errors are reported synchronously at
// submit time, before any workflow row is created).
const workflowSpecSchema = `{
	"type": "object",
	"required": ["groups"],
	"properties": {
		"groups": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "tasks"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"barrier": {"type": "boolean"},
					"ignore_nonlead_status": {"type": "boolean"},
					"tasks": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["name"],
							"properties": {
								"name": {"type": "string", "minLength": 1},
								"lead": {"type": "boolean"},
								"gpu_count": {"type": "integer", "minimum": 0}
							}
						}
					}
				}
			}
		}
	}
}`

var workflowSpecSchemaLoader = gojsonschema.NewStringLoader(workflowSpecSchema)

// ValidateWorkflowSpec checks raw against the structural schema before the
// SubmitWorkflow handler attempts DAG expansion; schema violations are a
// synchronous validation error, not a job failure.
func ValidateWorkflowSpec(raw []byte) error {
	result, err := gojsonschema.Validate(workflowSpecSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate workflow spec: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("workflow spec schema validation failed: %v", msgs)
	}
	return nil
}
