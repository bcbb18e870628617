// Package masking transforms sensitive fields of generated records
// before they are persisted. Every strategy is deterministic: the same
// value under the same directive masks to the same output, across runs
// and across collections, so masked references that must match still
// match. Nothing here can be reversed; there is no unmasking.
package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"ista/internal/catalog"
	"ista/internal/generator"
	dErrors "ista/pkg/domain-errors"
)

// DefaultReplacement is used by the redact strategy when the directive
// does not supply its own replacement constant.
const DefaultReplacement = "[REDACTED]"

// Aggregate holds the summary statistics the aggregate strategy
// exposes in place of raw numeric values.
type Aggregate struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Result reports what one Apply pass did: aggregates per aggregated
// field and how many values each strategy touched.
type Result struct {
	Aggregates map[string]Aggregate
	Masked     map[catalog.Strategy]int
}

type Pipeline struct{}

func New() *Pipeline {
	return &Pipeline{}
}

// Apply mutates the flagged fields of records in place and leaves every
// other field untouched. Applying the same directives a second time is
// a no-op: each transforming strategy recognizes its own output and
// skips values that already carry it. Directives with unknown
// strategies were already rejected at spec load time; hitting one here
// still fails the whole batch so partial masking never occurs.
func (p *Pipeline) Apply(records []generator.Record, directives []catalog.MaskingDirective) (*Result, error) {
	result := &Result{
		Aggregates: make(map[string]Aggregate),
		Masked:     make(map[catalog.Strategy]int),
	}
	for _, d := range directives {
		switch d.Strategy {
		case catalog.StrategyHash:
			for _, r := range records {
				if v, ok := r[d.Field]; ok && v != nil && !isDigest(v) {
					r[d.Field] = hashValue(d.Salt, v)
					result.Masked[d.Strategy]++
				}
			}
		case catalog.StrategyRedact:
			replacement := d.Replacement
			if replacement == "" {
				replacement = DefaultReplacement
			}
			for _, r := range records {
				if v, ok := r[d.Field]; ok && v != nil && v != replacement {
					r[d.Field] = replacement
					result.Masked[d.Strategy]++
				}
			}
		case catalog.StrategyAnonymize:
			for _, r := range records {
				if v, ok := r[d.Field]; ok && v != nil && !isAnonymized(v) {
					r[d.Field] = anonymizeValue(d.Salt, d.Field, fmt.Sprintf("%v", v))
					result.Masked[d.Strategy]++
				}
			}
		case catalog.StrategyAggregate:
			agg, touched := aggregateField(records, d.Field)
			if touched > 0 {
				result.Aggregates[d.Field] = agg
				result.Masked[d.Strategy] += touched
			}
		default:
			return nil, dErrors.Newf(dErrors.CodeUnknownMaskingStrategy,
				"field %s uses unknown masking strategy %q", d.Field, d.Strategy)
		}
	}
	return result, nil
}

// hashValue digests the salted value. The salt is fixed per directive,
// which is what makes equal source values collide on purpose.
func hashValue(salt string, value any) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%v", salt, value))
	return hex.EncodeToString(sum[:])
}

// isDigest reports whether v already has hashValue's output form, a
// 64-character lowercase hex string. Generated source data never takes
// this shape, so matching values are prior hash output.
func isDigest(v any) bool {
	s, ok := v.(string)
	if !ok || len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// isAnonymized reports whether v already has anonymizeValue's output
// form: capitalized vocabulary words joined by single spaces. The
// vocabulary holds no given names, so source name fields never match.
func isAnonymized(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	parts := strings.Fields(s)
	if len(parts) == 0 || s != strings.Join(parts, " ") {
		return false
	}
	for _, p := range parts {
		if p[0] < 'A' || p[0] > 'Z' || !generator.IsWord(p) {
			return false
		}
	}
	return true
}

// anonymizeValue replaces each whitespace-separated word of the source
// with a synthetic word drawn from a stream seeded by
// (salt, field, value), preserving the shape of the original while
// carrying none of its content.
func anonymizeValue(salt, field, value string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", salt, field, value)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	parts := strings.Fields(value)
	if len(parts) == 0 {
		parts = []string{value}
	}
	out := make([]string, len(parts))
	for i := range parts {
		word := generator.Word(rng)
		out[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(out, " ")
}

// aggregateField nils out the numeric field across the batch and
// returns its summary statistics. Raw values never survive this
// directive; only the aggregate does.
func aggregateField(records []generator.Record, field string) (Aggregate, int) {
	agg := Aggregate{}
	for _, r := range records {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		f, ok := asFloat(v)
		if !ok {
			continue
		}
		if agg.Count == 0 || f < agg.Min {
			agg.Min = f
		}
		if agg.Count == 0 || f > agg.Max {
			agg.Max = f
		}
		agg.Mean += f
		agg.Count++
		r[field] = nil
	}
	if agg.Count > 0 {
		agg.Mean /= float64(agg.Count)
	}
	return agg, agg.Count
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
