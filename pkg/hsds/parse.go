package hsds

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidJSON means the provider output was not parseable JSON
	ErrInvalidJSON = errors.New("hsds: invalid json")

	// ErrSchemaViolation means the output parsed but failed the subset schema
	ErrSchemaViolation = errors.New("hsds: schema violation")
)

// StripFences removes a Markdown code fence wrapper from provider
// output. Models often wrap JSON in ```json ... ``` despite prompt
// instructions. Input without a fence is returned trimmed.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// drop the language tag on the opening fence line, if any
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// Parse strips fences, enforces the subset schema, and decodes raw
// provider output into an AlignedRecord. Decoding is strict: fields
// outside the schema are rejected rather than silently dropped.
func Parse(raw string) (*AlignedRecord, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidJSON)
	}
	data := []byte(cleaned)
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: output is not a JSON document", ErrInvalidJSON)
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec AlignedRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if strings.TrimSpace(rec.Organization.Name) == "" {
		return nil, fmt.Errorf("%w: organization.name is blank", ErrSchemaViolation)
	}
	return &rec, nil
}
