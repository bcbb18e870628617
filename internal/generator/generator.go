// Package generator produces synthetic records from dataset specs.
// Generation is pure computation driven entirely by a seeded stream:
// the same (spec, seed) always yields the same records, and each
// dataset derives its own sub-seed so collections reproduce
// independently of one another.
package generator

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"ista/internal/catalog"
	dErrors "ista/pkg/domain-errors"
)

// Record is one generated document: field name to value. The synthetic
// identifier lives under the spec's identifier field.
type Record map[string]any

// idNamespace anchors deterministic UUIDv5 record identifiers.
var idNamespace = uuid.MustParse("7a68f5f4-93be-5cc2-a4b2-0d3f5a1e9b10")

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

// DatasetSeed derives the per-dataset seed from the run seed so
// collections generate independently but reproducibly.
func DatasetSeed(runSeed int64, name, version string) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s@%s", runSeed, name, version)
	return int64(h.Sum64())
}

// RecordID returns the deterministic identifier for record index in a
// dataset under a given run seed.
func RecordID(runSeed int64, name, version string, index int) string {
	return uuid.NewSHA1(idNamespace, fmt.Appendf(nil, "%s@%s/%d/%d", name, version, runSeed, index)).String()
}

// run carries the state of one dataset's generation pass.
type run struct {
	spec          *catalog.DatasetSpec
	runSeed       int64
	rng           *rand.Rand
	relationships map[string]catalog.RelationshipSpec
	resolver      *Resolver
}

// Generate produces spec.Volume records. Reference fields delegate to
// the resolver, drawing from this dataset's own stream. Volume zero is
// legal and returns an empty slice.
func (g *Generator) Generate(spec *catalog.DatasetSpec, runSeed int64, resolver *Resolver) ([]Record, error) {
	r := &run{
		spec:          spec,
		runSeed:       runSeed,
		rng:           rand.New(rand.NewSource(DatasetSeed(runSeed, spec.Name, spec.Version))),
		relationships: make(map[string]catalog.RelationshipSpec, len(spec.Relationships)),
		resolver:      resolver,
	}
	for _, rel := range spec.Relationships {
		r.relationships[rel.Field] = rel
	}

	records := make([]Record, 0, spec.Volume)
	for i := 0; i < spec.Volume; i++ {
		record := make(Record, len(spec.Fields))
		for _, field := range spec.Fields {
			value, err := r.fieldValue(field, i)
			if err != nil {
				return nil, err
			}
			record[field.Name] = value
		}
		records = append(records, record)
	}
	return records, nil
}

// nullRate is the probability a nullable field generates nil. Drawn
// from the seeded stream so null placement is reproducible too.
const nullRate = 0.1

func (r *run) fieldValue(field catalog.FieldSpec, index int) (any, error) {
	if field.Nullable && r.rng.Float64() < nullRate {
		return nil, nil
	}

	switch field.Type {
	case catalog.FieldIdentifier:
		return RecordID(r.runSeed, r.spec.Name, r.spec.Version, index), nil
	case catalog.FieldReference:
		rel, ok := r.relationships[field.Name]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeSpecInvalid,
				"reference field %s has no relationship", field.Name)
		}
		return r.resolver.Pick(rel.Dataset, r.rng)
	case catalog.FieldString:
		return r.stringValue(field, index), nil
	case catalog.FieldInteger:
		return r.intValue(field), nil
	case catalog.FieldFloat:
		return r.floatValue(field), nil
	case catalog.FieldBoolean:
		if field.Rule != nil && len(field.Rule.Choices) > 0 {
			return pickChoice(field.Rule, r.rng), nil
		}
		return r.rng.Intn(2) == 1, nil
	case catalog.FieldDate:
		return r.dateValue(field), nil
	case catalog.FieldArray:
		return r.arrayValue(field, index)
	case catalog.FieldObject:
		nested := make(map[string]any, len(field.Fields))
		for _, sub := range field.Fields {
			value, err := r.fieldValue(sub, index)
			if err != nil {
				return nil, err
			}
			nested[sub.Name] = value
		}
		return nested, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeSpecInvalid, "unknown field type %q", field.Type)
	}
}

func (r *run) arrayValue(field catalog.FieldSpec, index int) (any, error) {
	minLen, maxLen := 0, 3
	if field.Rule != nil {
		minLen = field.Rule.MinLen
		if field.Rule.MaxLen > 0 {
			maxLen = field.Rule.MaxLen
		}
	}
	length := minLen
	if maxLen > minLen {
		length = minLen + r.rng.Intn(maxLen-minLen+1)
	}
	values := make([]any, 0, length)
	for j := 0; j < length; j++ {
		value, err := r.fieldValue(*field.Element, index)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func (r *run) stringValue(field catalog.FieldSpec, index int) string {
	rule := field.Rule
	if rule == nil {
		return randomWord(r.rng)
	}
	if len(rule.Choices) > 0 {
		return pickChoice(rule, r.rng).(string)
	}
	if rule.Pattern != "" {
		return expandPattern(rule.Pattern, index, r.rng)
	}
	return randomWord(r.rng)
}

func (r *run) intValue(field catalog.FieldSpec) int {
	rule := field.Rule
	if rule != nil && len(rule.Choices) > 0 {
		return pickChoice(rule, r.rng).(int)
	}
	lo, hi := catalog.DefaultIntMin, catalog.DefaultIntMax
	if rule != nil {
		if rule.Min != nil {
			lo = int(*rule.Min)
		}
		if rule.Max != nil {
			hi = int(*rule.Max)
		}
	}
	// Ranges are inclusive on both ends.
	return lo + r.rng.Intn(hi-lo+1)
}

func (r *run) floatValue(field catalog.FieldSpec) float64 {
	rule := field.Rule
	if rule != nil && len(rule.Choices) > 0 {
		switch v := pickChoice(rule, r.rng).(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	lo, hi := catalog.DefaultFloatMin, catalog.DefaultFloatMax
	if rule != nil {
		if rule.Min != nil {
			lo = *rule.Min
		}
		if rule.Max != nil {
			hi = *rule.Max
		}
	}
	return lo + r.rng.Float64()*(hi-lo)
}

func (r *run) dateValue(field catalog.FieldSpec) string {
	minDate, maxDate := catalog.DefaultMinDate, catalog.DefaultMaxDate
	if field.Rule != nil {
		if field.Rule.MinDate != "" {
			minDate, _ = time.Parse(catalog.DateLayout, field.Rule.MinDate)
		}
		if field.Rule.MaxDate != "" {
			maxDate, _ = time.Parse(catalog.DateLayout, field.Rule.MaxDate)
		}
	}
	days := int(maxDate.Sub(minDate).Hours()/24) + 1
	return minDate.AddDate(0, 0, r.rng.Intn(days)).Format(catalog.DateLayout)
}
