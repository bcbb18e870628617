package generator

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ista/internal/catalog"
)

// words feeds random word generation for free-form strings, patterns
// and anonymized replacements. Deliberately innocuous vocabulary so
// generated text never resembles real personal data.
var words = []string{
	"amber", "basil", "cobalt", "dune", "ember", "fable", "garnet", "harbor",
	"indigo", "juniper", "kestrel", "lumen", "maple", "nimbus", "onyx", "plume",
	"quartz", "raven", "sable", "tundra", "umber", "velvet", "willow", "xenon",
	"yarrow", "zephyr", "alder", "birch", "cedar", "damson", "elm", "fennel",
}

// Word draws one word from the shared vocabulary using the caller's
// stream. Also used by masking to synthesize anonymized replacements.
func Word(rng *rand.Rand) string {
	return words[rng.Intn(len(words))]
}

var wordSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// IsWord reports whether s (lowercased) belongs to the shared
// vocabulary. Masking uses it to recognize values it already produced.
func IsWord(s string) bool {
	_, ok := wordSet[strings.ToLower(s)]
	return ok
}

func randomWord(rng *rand.Rand) string {
	return Word(rng)
}

// pickChoice selects one of the rule's choices. With weights the draw
// is proportional and a zero-weight choice is never selected; without
// weights it is uniform. Validation guarantees weights, when present,
// match the choices in length and sum to a positive total.
func pickChoice(rule *catalog.Rule, rng *rand.Rand) any {
	if len(rule.Weights) == 0 {
		return rule.Choices[rng.Intn(len(rule.Choices))]
	}
	total := 0.0
	for _, w := range rule.Weights {
		total += w
	}
	target := rng.Float64() * total
	for i, w := range rule.Weights {
		if w == 0 {
			continue
		}
		target -= w
		if target < 0 {
			return rule.Choices[i]
		}
	}
	// Float accumulation can land exactly on the total; fall back to
	// the last positively weighted choice.
	for i := len(rule.Weights) - 1; i >= 0; i-- {
		if rule.Weights[i] > 0 {
			return rule.Choices[i]
		}
	}
	return rule.Choices[len(rule.Choices)-1]
}

// expandPattern renders a pattern string, substituting tokens:
//
//	{seq}       the zero-based record index
//	{word}      a random word from the seeded stream
//	{digits:n}  n random decimal digits
//	{uuid}      a random UUID drawn from the seeded stream
//
// Everything outside tokens passes through verbatim.
func expandPattern(pattern string, index int, rng *rand.Rand) string {
	var b strings.Builder
	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		token := rest[open+1 : open+close]
		rest = rest[open+close+1:]

		switch {
		case token == "seq":
			b.WriteString(strconv.Itoa(index))
		case token == "word":
			b.WriteString(randomWord(rng))
		case token == "uuid":
			b.WriteString(seededUUID(rng))
		case strings.HasPrefix(token, "digits:"):
			n, err := strconv.Atoi(token[len("digits:"):])
			if err != nil || n <= 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				b.WriteByte(byte('0' + rng.Intn(10)))
			}
		default:
			// Unknown token: emit literally so typos are visible in output.
			b.WriteByte('{')
			b.WriteString(token)
			b.WriteByte('}')
		}
	}
}

// seededUUID builds a version-4-shaped UUID from the seeded stream so
// pattern {uuid} stays reproducible.
func seededUUID(rng *rand.Rand) string {
	var raw [16]byte
	for i := range raw {
		raw[i] = byte(rng.Intn(256))
	}
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	id, err := uuid.FromBytes(raw[:])
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}
