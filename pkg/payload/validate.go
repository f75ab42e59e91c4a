package payload

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/libstaff/reqflow/pkg/entity"
)

//go:embed schema/request.yaml
var requestSchemaYAML []byte

const requestSchemaName = "request"

// Validator checks shaped payloads against the embedded circulation API
// schema fragment, so a malformed body is caught locally instead of as a
// round-trip rejection.
type Validator struct {
	schema *openapi3.Schema
}

// NewValidator loads the embedded schema. It fails only if the embedded
// document is broken, which is a build defect rather than runtime input.
func NewValidator() (*Validator, error) {
	loader := &openapi3.Loader{}
	doc, err := loader.LoadFromData(requestSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("payload: load embedded schema: %w", err)
	}
	if doc.Components == nil {
		return nil, errors.New("payload: embedded schema has no components")
	}
	ref, ok := doc.Components.Schemas[requestSchemaName]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("payload: embedded schema missing %q", requestSchemaName)
	}
	return &Validator{schema: ref.Value}, nil
}

// Validate reports schema violations in the shaped payload. Violations
// are local validation failures; they never reach the submitter.
func (v *Validator) Validate(ctx context.Context, p entity.RequestPayload) error {
	if v == nil || v.schema == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("payload: marshal for validation: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("payload: decode for validation: %w", err)
	}

	if err := v.schema.VisitJSON(generic, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("payload: schema validation: %w", err)
	}
	return nil
}
