// Package validate checks record payloads against per-kind JSON schemas.
package validate

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

const schemaBase = "https://schemas.carenote.app/v1/"

var schemas = map[model.Kind]string{
	model.KindMedication: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"dosage": {"type": "string"},
			"schedule": {"type": "string"}
		}
	}`,
	model.KindTask: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"due_at": {"type": "string"},
			"done": {"type": "boolean"}
		}
	}`,
	model.KindNote: `{
		"type": "object",
		"required": ["body"],
		"properties": {"body": {"type": "string"}}
	}`,
	model.KindHealthRecord: `{
		"type": "object",
		"required": ["type", "value", "recorded_at"],
		"properties": {
			"type": {"type": "string", "minLength": 1},
			"value": {"type": "number"},
			"unit": {"type": "string"},
			"recorded_at": {"type": "string"}
		}
	}`,
	model.KindCalendarEvent: `{
		"type": "object",
		"required": ["title", "date", "frequency"],
		"properties": {
			"title": {"type": "string"},
			"date": {"type": "string"},
			"frequency": {"enum": ["NONE", "DAILY", "WEEKLY", "MONTHLY"]},
			"interval": {"type": "integer"}
		},
		"if": {"properties": {"frequency": {"const": "NONE"}}},
		"else": {"required": ["interval"], "properties": {"interval": {"minimum": 1}}}
	}`,
}

// Validator holds the compiled schemas.
type Validator struct {
	compiled map[model.Kind]*jsonschema.Schema
}

// New compiles the schema of every record kind.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for kind, src := range schemas {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(src)))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", kind, err)
		}
		if err := c.AddResource(schemaBase+string(kind)+".json", doc); err != nil {
			return nil, fmt.Errorf("schema %s: %w", kind, err)
		}
	}
	v := &Validator{compiled: make(map[model.Kind]*jsonschema.Schema, len(schemas))}
	for kind := range schemas {
		sch, err := c.Compile(schemaBase + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", kind, err)
		}
		v.compiled[kind] = sch
	}
	return v, nil
}

// Record checks a record's kind and, for live records, its payload.
// The error never includes payload content.
func (v *Validator) Record(r model.SyncableRecord) error {
	if !r.Kind.Valid() {
		return errs.Validationf("unknown kind %q", r.Kind)
	}
	if r.IsTombstone() {
		return nil
	}
	return v.Payload(r.Kind, r.Payload)
}

// Payload validates raw JSON against the schema of kind.
func (v *Validator) Payload(kind model.Kind, raw []byte) error {
	sch, ok := v.compiled[kind]
	if !ok {
		return errs.Validationf("unknown kind %q", kind)
	}
	if len(raw) == 0 {
		return errs.Validationf("%s payload is empty", kind)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errs.E(errs.Validation, "validation: malformed "+string(kind)+" payload", err)
	}
	if err := sch.Validate(inst); err != nil {
		return errs.E(errs.Validation, "validation: "+string(kind)+" payload does not match schema", err)
	}
	return nil
}
