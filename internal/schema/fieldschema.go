package schema

import (
	"encoding/json"
	"fmt"

	"github.com/mstreamio/mstream/internal/svcerr"
)

// FieldType names a primitive type a FieldSchema field may hold.
type FieldType string

const (
	FieldLong   FieldType = "long"
	FieldString FieldType = "string"
	FieldDouble FieldType = "double"
	FieldBool   FieldType = "boolean"
)

// Field describes one schema field's name and type.
type Field struct {
	Name string
	Type FieldType
}

// FieldSchema is a minimal, declared-field Schema implementation. It
// validates that a document's fields match their declared types and
// encodes/decodes via a deterministic JSON representation — standing in for
// the Avro/JSON-Schema encoders spec §1 treats as pure library collaborators
// out of scope for the core.
type FieldSchema struct {
	id      string
	version string
	fields  []Field
}

// NewFieldSchema builds a schema with identity (id, version) and fields.
func NewFieldSchema(id, version string, fields []Field) *FieldSchema {
	return &FieldSchema{id: id, version: version, fields: fields}
}

func (s *FieldSchema) ID() string      { return s.id }
func (s *FieldSchema) Version() string { return s.version }

func (s *FieldSchema) Validate(doc map[string]any) error {
	for _, f := range s.fields {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}
		if !matchesType(v, f.Type) {
			return svcerr.New(svcerr.CodeSchemaValidationError,
				fmt.Sprintf("field %q: value %v does not match type %q", f.Name, v, f.Type))
		}
	}
	return nil
}

func matchesType(v any, t FieldType) bool {
	switch t {
	case FieldLong:
		switch v.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case FieldDouble:
		_, ok := v.(float64)
		return ok
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

// Encode serialises doc deterministically, restricted to the schema's
// declared fields, normalising numeric fields to int64/float64 by type.
func (s *FieldSchema) Encode(doc map[string]any) ([]byte, error) {
	if err := s.Validate(doc); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = normalize(v, f.Type)
	}
	return json.Marshal(out)
}

func normalize(v any, t FieldType) any {
	if t != FieldLong {
		return v
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return v
	}
}

// Decode parses bytes produced by Encode back into a document.
func (s *FieldSchema) Decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeSchemaValidationError, "decoding document", err)
	}
	return doc, nil
}
