package hsds

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaVersion is the HSDS release the subset schema tracks
const SchemaVersion = "3.1.1"

// SchemaJSON is the JSON Schema for the aligned-record subset of HSDS.
// It is embedded in LLM prompts verbatim and enforced on every provider
// response before a record enters the validator queue.
const SchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "HSDS aligned record (subset of HSDS 3.1.1)",
  "type": "object",
  "additionalProperties": false,
  "required": ["organization"],
  "properties": {
    "organization": {
      "type": "object",
      "additionalProperties": false,
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "alternate_name": {"type": "string"},
        "description": {"type": "string"},
        "email": {"type": "string"},
        "website": {"type": "string"},
        "phone": {"type": "string"},
        "source_id": {"type": "string"}
      }
    },
    "location": {
      "type": ["object", "null"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"},
        "address_1": {"type": "string"},
        "address_2": {"type": "string"},
        "city": {"type": "string"},
        "state_province": {"type": "string"},
        "postal_code": {"type": "string"},
        "country": {"type": "string"},
        "latitude": {"type": ["number", "null"]},
        "longitude": {"type": ["number", "null"]}
      }
    },
    "services": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "alternate_name": {"type": "string"},
          "description": {"type": "string"},
          "status": {"type": "string", "enum": ["active", "inactive", "defunct", "temporarily closed"]},
          "phone": {"type": "string"},
          "email": {"type": "string"}
        }
      }
    },
    "schedules": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "freq": {"type": "string", "enum": ["WEEKLY", "MONTHLY"]},
          "byday": {"type": "string"},
          "opens_at": {"type": "string"},
          "closes_at": {"type": "string"},
          "description": {"type": "string"},
          "service_index": {"type": ["integer", "null"], "minimum": 0}
        }
      }
    }
  }
}`

var schema *gojsonschema.Schema

func init() {
	var err error
	schema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(SchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("hsds: compiling subset schema: %v", err))
	}
}

// ValidateSchema checks raw JSON against the subset schema and returns
// a schema violation error listing every failed constraint
func ValidateSchema(data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		details = append(details, re.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; "))
}
