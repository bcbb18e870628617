package masking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ista/internal/catalog"
	"ista/internal/generator"
	dErrors "ista/pkg/domain-errors"
)

func records(values ...generator.Record) []generator.Record {
	return values
}

func TestHashStrategy(t *testing.T) {
	directive := []catalog.MaskingDirective{{Field: "email", Strategy: catalog.StrategyHash, Salt: "pepper"}}

	t.Run("identical values under the same salt collide", func(t *testing.T) {
		batch := records(
			generator.Record{"email": "a@example.com"},
			generator.Record{"email": "a@example.com"},
			generator.Record{"email": "b@example.com"},
		)

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.Equal(t, batch[0]["email"], batch[1]["email"])
		assert.NotEqual(t, batch[0]["email"], batch[2]["email"])
		assert.Len(t, batch[0]["email"].(string), 64)
		assert.Equal(t, 3, result.Masked[catalog.StrategyHash])
	})

	t.Run("different salts diverge for the same value", func(t *testing.T) {
		first := records(generator.Record{"email": "a@example.com"})
		second := records(generator.Record{"email": "a@example.com"})

		_, err := New().Apply(first, directive)
		require.NoError(t, err)
		_, err = New().Apply(second, []catalog.MaskingDirective{
			{Field: "email", Strategy: catalog.StrategyHash, Salt: "other"},
		})
		require.NoError(t, err)

		assert.NotEqual(t, first[0]["email"], second[0]["email"])
	})

	t.Run("equal values mask equally across collections", func(t *testing.T) {
		users := records(generator.Record{"email": "a@example.com"})
		orders := records(generator.Record{"email": "a@example.com"})

		_, err := New().Apply(users, directive)
		require.NoError(t, err)
		_, err = New().Apply(orders, directive)
		require.NoError(t, err)

		assert.Equal(t, users[0]["email"], orders[0]["email"])
	})

	t.Run("re-applying the directive is a no-op", func(t *testing.T) {
		batch := records(generator.Record{"email": "a@b.com"})

		_, err := New().Apply(batch, directive)
		require.NoError(t, err)
		once := batch[0]["email"]

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.Equal(t, once, batch[0]["email"])
		assert.Zero(t, result.Masked[catalog.StrategyHash])
	})
}

func TestRedactStrategy(t *testing.T) {
	t.Run("uses directive replacement", func(t *testing.T) {
		batch := records(generator.Record{"ssn": "123-45-6789", "name": "keep"})

		_, err := New().Apply(batch, []catalog.MaskingDirective{
			{Field: "ssn", Strategy: catalog.StrategyRedact, Replacement: "***"},
		})
		require.NoError(t, err)

		assert.Equal(t, "***", batch[0]["ssn"])
		assert.Equal(t, "keep", batch[0]["name"])
	})

	t.Run("falls back to the default constant", func(t *testing.T) {
		batch := records(generator.Record{"ssn": "123-45-6789"})

		_, err := New().Apply(batch, []catalog.MaskingDirective{
			{Field: "ssn", Strategy: catalog.StrategyRedact},
		})
		require.NoError(t, err)

		assert.Equal(t, DefaultReplacement, batch[0]["ssn"])
	})

	t.Run("re-applying the directive is a no-op", func(t *testing.T) {
		directive := []catalog.MaskingDirective{{Field: "ssn", Strategy: catalog.StrategyRedact}}
		batch := records(generator.Record{"ssn": "123-45-6789"})

		_, err := New().Apply(batch, directive)
		require.NoError(t, err)

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.Equal(t, DefaultReplacement, batch[0]["ssn"])
		assert.Zero(t, result.Masked[catalog.StrategyRedact])
	})
}

func TestAnonymizeStrategy(t *testing.T) {
	directive := []catalog.MaskingDirective{{Field: "fullName", Strategy: catalog.StrategyAnonymize, Salt: "names"}}

	t.Run("replacement is deterministic and preserves word count", func(t *testing.T) {
		first := records(generator.Record{"fullName": "Ada Lovelace"})
		second := records(generator.Record{"fullName": "Ada Lovelace"})

		_, err := New().Apply(first, directive)
		require.NoError(t, err)
		_, err = New().Apply(second, directive)
		require.NoError(t, err)

		masked := first[0]["fullName"].(string)
		assert.Equal(t, masked, second[0]["fullName"])
		assert.NotEqual(t, "Ada Lovelace", masked)
		assert.Len(t, strings.Fields(masked), 2)
	})

	t.Run("distinct values get distinct replacements", func(t *testing.T) {
		batch := records(
			generator.Record{"fullName": "Ada Lovelace"},
			generator.Record{"fullName": "Grace Hopper"},
		)

		_, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.NotEqual(t, batch[0]["fullName"], batch[1]["fullName"])
	})

	t.Run("re-applying the directive is a no-op", func(t *testing.T) {
		batch := records(generator.Record{"fullName": "Ada Lovelace"})

		_, err := New().Apply(batch, directive)
		require.NoError(t, err)
		once := batch[0]["fullName"]

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.Equal(t, once, batch[0]["fullName"])
		assert.Zero(t, result.Masked[catalog.StrategyAnonymize])
	})
}

func TestAggregateStrategy(t *testing.T) {
	directive := []catalog.MaskingDirective{{Field: "total", Strategy: catalog.StrategyAggregate}}

	t.Run("raw values are dropped and stats exposed", func(t *testing.T) {
		batch := records(
			generator.Record{"total": 10.0},
			generator.Record{"total": 20.0},
			generator.Record{"total": 30.0},
		)

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		for _, r := range batch {
			assert.Nil(t, r["total"])
		}
		agg := result.Aggregates["total"]
		assert.Equal(t, 3, agg.Count)
		assert.Equal(t, 10.0, agg.Min)
		assert.Equal(t, 30.0, agg.Max)
		assert.Equal(t, 20.0, agg.Mean)
	})

	t.Run("integers aggregate too", func(t *testing.T) {
		batch := records(generator.Record{"total": 4}, generator.Record{"total": 6})

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.Equal(t, 5.0, result.Aggregates["total"].Mean)
	})

	t.Run("nil values are skipped", func(t *testing.T) {
		batch := records(generator.Record{"total": nil}, generator.Record{"total": 8.0})

		result, err := New().Apply(batch, directive)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Aggregates["total"].Count)
	})
}

func TestApplyEdgeCases(t *testing.T) {
	t.Run("fields absent from a record pass silently", func(t *testing.T) {
		batch := records(generator.Record{"other": "x"})

		result, err := New().Apply(batch, []catalog.MaskingDirective{
			{Field: "email", Strategy: catalog.StrategyHash, Salt: "s"},
		})
		require.NoError(t, err)

		assert.Zero(t, result.Masked[catalog.StrategyHash])
	})

	t.Run("unknown strategy fails the whole batch", func(t *testing.T) {
		batch := records(generator.Record{"email": "a@example.com"})

		_, err := New().Apply(batch, []catalog.MaskingDirective{
			{Field: "email", Strategy: catalog.Strategy("encrypt")},
		})
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeUnknownMaskingStrategy, dErrors.CodeOf(err))
		assert.Equal(t, "a@example.com", batch[0]["email"])
	})
}
