package disposition

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resultSchemaURL = "mem://callsense/disposition.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func resultSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(resultSchemaURL, strings.NewReader(resultSchemaJSON())); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(resultSchemaURL)
	})
	return schema, schemaErr
}

// Validate checks r against the published output contract.
func Validate(r Result) error {
	s, err := resultSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("disposition schema: %w", err)
	}
	return nil
}

// Schema returns the output contract as a JSON document.
func Schema() string {
	return resultSchemaJSON()
}

func resultSchemaJSON() string {
	quote := func(labels []string) string {
		b, _ := json.Marshal(labels)
		return string(b)
	}
	return `{
  "type": "object",
  "additionalProperties": false,
  "required": ["disposition", "payment_disposition", "reason_for_not_paying", "ptp_details", "remarks", "confidence_score"],
  "properties": {
    "disposition": {"type": "string", "pattern": "^[\\p{L}\\p{N}_]*[\\p{L}\\p{N}][\\p{L}\\p{N}_]*$", "minLength": 3},
    "payment_disposition": {"enum": ` + quote(PaymentDispositions) + `},
    "reason_for_not_paying": {"type": "string", "minLength": 1},
    "ptp_details": {
      "type": "object",
      "additionalProperties": false,
      "required": ["amount", "date"],
      "properties": {
        "amount": {"type": ["string", "null"], "pattern": "^-?[0-9]+$"},
        "date": {"type": ["string", "null"], "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
      }
    },
    "remarks": {"type": "string"},
    "confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "if": {"properties": {"payment_disposition": {"not": {"enum": ` + quote(PTPBearing) + `}}}},
  "then": {"properties": {"ptp_details": {"properties": {"amount": {"type": "null"}, "date": {"type": "null"}}}}}
}`
}
