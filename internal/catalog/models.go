// Package catalog loads and validates declarative dataset
// specifications. Specs are immutable once loaded; all validation is
// static so generation never sees a malformed spec.
package catalog

// FieldType enumerates the semantic types a field can declare.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldInteger    FieldType = "integer"
	FieldFloat      FieldType = "float"
	FieldBoolean    FieldType = "boolean"
	FieldDate       FieldType = "date"
	FieldArray      FieldType = "array"
	FieldObject     FieldType = "object"
	FieldIdentifier FieldType = "identifier"
	FieldReference  FieldType = "reference"
)

// Strategy enumerates the masking strategies. The set is closed;
// the masking pipeline switches exhaustively over it and the catalog
// rejects unknown tags at load time so partial masking cannot occur.
type Strategy string

const (
	StrategyHash      Strategy = "hash"
	StrategyRedact    Strategy = "redact"
	StrategyAnonymize Strategy = "anonymize"
	StrategyAggregate Strategy = "aggregate"
)

// Valid reports whether the tag names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyHash, StrategyRedact, StrategyAnonymize, StrategyAggregate:
		return true
	}
	return false
}

// Rule parameterizes value generation for one field. Which keys apply
// depends on the field type: choices/weights for any scalar, min/max
// for numeric and date ranges, pattern for strings, minLen/maxLen for
// arrays.
type Rule struct {
	Choices []any     `yaml:"choices,omitempty"`
	Weights []float64 `yaml:"weights,omitempty"`
	Min     *float64  `yaml:"min,omitempty"`
	Max     *float64  `yaml:"max,omitempty"`
	MinDate string    `yaml:"minDate,omitempty"`
	MaxDate string    `yaml:"maxDate,omitempty"`
	Pattern string    `yaml:"pattern,omitempty"`
	MinLen  int       `yaml:"minLen,omitempty"`
	MaxLen  int       `yaml:"maxLen,omitempty"`
}

// FieldSpec describes one field of a dataset. Object fields nest
// further FieldSpecs; array fields describe their element.
type FieldSpec struct {
	Name     string      `yaml:"name"`
	Type     FieldType   `yaml:"type"`
	Rule     *Rule       `yaml:"rule,omitempty"`
	Nullable bool        `yaml:"nullable,omitempty"`
	Fields   []FieldSpec `yaml:"fields,omitempty"`
	Element  *FieldSpec  `yaml:"element,omitempty"`
}

// RelationshipSpec links a reference field to the identifier field of
// another dataset. Children can only reference datasets generated
// earlier in the same run; the orchestrator enforces the ordering.
type RelationshipSpec struct {
	Field      string `yaml:"field"`
	Dataset    string `yaml:"dataset"`
	References string `yaml:"references"`
}

// MaskingDirective flags one field for masking before persistence.
// Masking is deterministic: the same input under the same directive
// always produces the same output, across runs and collections.
type MaskingDirective struct {
	Field       string   `yaml:"field"`
	Strategy    Strategy `yaml:"strategy"`
	Salt        string   `yaml:"salt,omitempty"`
	Replacement string   `yaml:"replacement,omitempty"`
}

// DatasetSpec is the declarative description of one collection: shape,
// volume, relationships, and masking directives. Identified by
// (name, version); immutable once loaded.
type DatasetSpec struct {
	Name          string             `yaml:"name"`
	Version       string             `yaml:"version"`
	Collection    string             `yaml:"collection"`
	Volume        int                `yaml:"volume"`
	Fields        []FieldSpec        `yaml:"fields"`
	Relationships []RelationshipSpec `yaml:"relationships,omitempty"`
	Masking       []MaskingDirective `yaml:"maskingDirectives,omitempty"`
}

// IdentifierField returns the name of the dataset's identifier field.
// Validation guarantees exactly one exists.
func (s *DatasetSpec) IdentifierField() string {
	for _, f := range s.Fields {
		if f.Type == FieldIdentifier {
			return f.Name
		}
	}
	return ""
}

// Field looks up a top-level field by name.
func (s *DatasetSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
