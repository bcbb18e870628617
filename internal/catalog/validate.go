package catalog

import (
	"fmt"
	"time"

	dErrors "ista/pkg/domain-errors"
)

// DateLayout is the wire format for date rule bounds.
const DateLayout = "2006-01-02"

// Generation defaults for range rules that leave a bound unset. An
// explicit one-sided bound is validated against the default on the
// other side so every loaded spec has a non-empty range.
const (
	DefaultIntMin   = 0
	DefaultIntMax   = 100
	DefaultFloatMin = 0.0
	DefaultFloatMax = 1.0
)

var (
	DefaultMinDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultMaxDate = time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
)

// validateSpec runs every static check for a single spec. Generation
// relies on this having passed, so the hot path carries no control
// flow for bad input.
func validateSpec(spec *DatasetSpec) error {
	if spec.Name == "" {
		return dErrors.New(dErrors.CodeSpecInvalid, "dataset name is required")
	}
	if spec.Version == "" {
		return invalidf(spec, "version is required")
	}
	if spec.Collection == "" {
		return invalidf(spec, "target collection is required")
	}
	if spec.Volume < 0 {
		return invalidf(spec, "volume must be >= 0, got %d", spec.Volume)
	}
	if len(spec.Fields) == 0 {
		return invalidf(spec, "at least one field is required")
	}

	seen := make(map[string]bool, len(spec.Fields))
	identifiers := 0
	for _, field := range spec.Fields {
		if seen[field.Name] {
			return invalidf(spec, "duplicate field %s", field.Name)
		}
		seen[field.Name] = true
		if field.Type == FieldIdentifier {
			identifiers++
		}
		if err := validateField(spec, field.Name, field); err != nil {
			return err
		}
	}
	if identifiers != 1 {
		return invalidf(spec, "exactly one identifier field is required, found %d", identifiers)
	}

	if err := validateRelationshipFields(spec); err != nil {
		return err
	}
	return validateMasking(spec)
}

func validateField(spec *DatasetSpec, path string, field FieldSpec) error {
	if field.Name == "" {
		return invalidf(spec, "field at %s has no name", path)
	}

	switch field.Type {
	case FieldIdentifier, FieldReference:
		if field.Rule != nil {
			return invalidf(spec, "field %s: %s fields take no generation rule", path, field.Type)
		}
		return nil
	case FieldString:
		return validateScalarRule(spec, path, field, false)
	case FieldInteger, FieldFloat:
		return validateScalarRule(spec, path, field, true)
	case FieldBoolean:
		return nil
	case FieldDate:
		return validateDateRule(spec, path, field.Rule)
	case FieldArray:
		if field.Element == nil {
			return invalidf(spec, "field %s: array fields require an element spec", path)
		}
		if field.Rule != nil && field.Rule.MinLen > field.Rule.MaxLen && field.Rule.MaxLen != 0 {
			return invalidf(spec, "field %s: minLen exceeds maxLen", path)
		}
		return validateField(spec, path+"[]", *field.Element)
	case FieldObject:
		if len(field.Fields) == 0 {
			return invalidf(spec, "field %s: object fields require nested fields", path)
		}
		nested := make(map[string]bool, len(field.Fields))
		for _, sub := range field.Fields {
			if nested[sub.Name] {
				return invalidf(spec, "field %s: duplicate nested field %s", path, sub.Name)
			}
			nested[sub.Name] = true
			if sub.Type == FieldIdentifier {
				return invalidf(spec, "field %s.%s: identifiers must be top-level", path, sub.Name)
			}
			if err := validateField(spec, path+"."+sub.Name, sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return invalidf(spec, "field %s: unknown type %q", path, field.Type)
	}
}

func validateScalarRule(spec *DatasetSpec, path string, field FieldSpec, numeric bool) error {
	rule := field.Rule
	if rule == nil {
		return nil
	}
	if len(rule.Choices) > 0 {
		if err := validateWeights(spec, path, rule); err != nil {
			return err
		}
		for _, choice := range rule.Choices {
			if !choiceMatchesType(choice, field.Type) {
				return invalidf(spec, "field %s: choice %v does not match declared type %s", path, choice, field.Type)
			}
		}
		return nil
	}
	if numeric {
		if rule.Pattern != "" {
			return invalidf(spec, "field %s: pattern rules apply to string fields only", path)
		}
		lo, hi := DefaultFloatMin, DefaultFloatMax
		if field.Type == FieldInteger {
			lo, hi = DefaultIntMin, DefaultIntMax
		}
		if rule.Min != nil {
			lo = *rule.Min
		}
		if rule.Max != nil {
			hi = *rule.Max
		}
		if lo > hi {
			return invalidf(spec, "field %s: min %v exceeds max %v (unset bounds take generation defaults)", path, lo, hi)
		}
		return nil
	}
	if rule.Min != nil || rule.Max != nil {
		return invalidf(spec, "field %s: range rules apply to numeric fields only", path)
	}
	return nil
}

func validateDateRule(spec *DatasetSpec, path string, rule *Rule) error {
	if rule == nil {
		return nil
	}
	minDate, maxDate := DefaultMinDate, DefaultMaxDate
	var err error
	if rule.MinDate != "" {
		if minDate, err = time.Parse(DateLayout, rule.MinDate); err != nil {
			return invalidf(spec, "field %s: bad minDate %q", path, rule.MinDate)
		}
	}
	if rule.MaxDate != "" {
		if maxDate, err = time.Parse(DateLayout, rule.MaxDate); err != nil {
			return invalidf(spec, "field %s: bad maxDate %q", path, rule.MaxDate)
		}
	}
	if minDate.After(maxDate) {
		return invalidf(spec, "field %s: minDate after maxDate (unset bounds take generation defaults)", path)
	}
	return nil
}

func validateWeights(spec *DatasetSpec, path string, rule *Rule) error {
	if len(rule.Weights) == 0 {
		return nil
	}
	if len(rule.Weights) != len(rule.Choices) {
		return invalidf(spec, "field %s: %d weights for %d choices", path, len(rule.Weights), len(rule.Choices))
	}
	total := 0.0
	for _, w := range rule.Weights {
		if w < 0 {
			return invalidf(spec, "field %s: negative weight %v", path, w)
		}
		total += w
	}
	if total <= 0 {
		return invalidf(spec, "field %s: weights must sum to a positive value", path)
	}
	return nil
}

func choiceMatchesType(choice any, fieldType FieldType) bool {
	switch fieldType {
	case FieldString:
		_, ok := choice.(string)
		return ok
	case FieldInteger:
		_, ok := choice.(int)
		return ok
	case FieldFloat:
		switch choice.(type) {
		case float64, int:
			return true
		}
		return false
	case FieldBoolean:
		_, ok := choice.(bool)
		return ok
	default:
		return false
	}
}

// validateRelationshipFields checks that relationships and reference
// fields line up one-to-one within the spec. Cross-dataset checks run
// at catalog level once all specs are loaded.
func validateRelationshipFields(spec *DatasetSpec) error {
	related := make(map[string]bool, len(spec.Relationships))
	for _, rel := range spec.Relationships {
		if rel.Dataset == "" || rel.References == "" {
			return invalidf(spec, "relationship %s: dataset and references are required", rel.Field)
		}
		field, ok := spec.Field(rel.Field)
		if !ok {
			return invalidf(spec, "relationship names unknown field %s", rel.Field)
		}
		if field.Type != FieldReference {
			return invalidf(spec, "relationship field %s must be of type reference, got %s", rel.Field, field.Type)
		}
		if related[rel.Field] {
			return invalidf(spec, "field %s has multiple relationships", rel.Field)
		}
		related[rel.Field] = true
	}
	for _, field := range spec.Fields {
		if field.Type == FieldReference && !related[field.Name] {
			return invalidf(spec, "reference field %s has no relationship", field.Name)
		}
	}
	return nil
}

func validateMasking(spec *DatasetSpec) error {
	for _, directive := range spec.Masking {
		if !directive.Strategy.Valid() {
			return dErrors.Newf(dErrors.CodeUnknownMaskingStrategy,
				"%s@%s: field %s uses unknown masking strategy %q",
				spec.Name, spec.Version, directive.Field, directive.Strategy)
		}
		field, ok := spec.Field(directive.Field)
		if !ok {
			return invalidf(spec, "masking directive names unknown field %s", directive.Field)
		}
		switch directive.Strategy {
		case StrategyHash, StrategyAnonymize:
			if field.Type != FieldString {
				return invalidf(spec, "field %s: %s masking applies to string fields only", directive.Field, directive.Strategy)
			}
		case StrategyAggregate:
			if field.Type != FieldInteger && field.Type != FieldFloat {
				return invalidf(spec, "field %s: aggregate masking applies to numeric fields only", directive.Field)
			}
		case StrategyRedact:
			// Any field can be redacted.
		}
	}
	return nil
}

func invalidf(spec *DatasetSpec, format string, args ...any) error {
	prefix := fmt.Sprintf("%s@%s: ", spec.Name, spec.Version)
	return dErrors.Newf(dErrors.CodeSpecInvalid, prefix+format, args...)
}
