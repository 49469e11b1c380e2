package parser

import (
	"fmt"
	"math/rand"
	"regexp/syntax"
	"strings"

	"botsim/internal/logging"
	"botsim/internal/schema"
)

// maxRegexSamples caps how many strings are enumerated from a regex
// entity's language.
const maxRegexSamples = 5

var firstNames = []string{"Alice", "Marco", "Priya", "Daniel", "Yuki", "Lena"}
var lastNames = []string{"Smith", "Garcia", "Nguyen", "Keller", "Okafor", "Tanaka"}
var streets = []string{"415 Mission St", "1 Market St", "22 Baker Ave", "901 Pine Rd"}
var dates = []string{"2025-12-01", "2026-01-15", "2026-03-08", "tomorrow"}
var times = []string{"9:00 AM", "10:30 AM", "2:15 PM", "6:45 PM"}

const randomTextChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomText(rng *rand.Rand, size int) string {
	var b strings.Builder
	for i := 0; i < size; i++ {
		b.WriteByte(randomTextChars[rng.Intn(len(randomTextChars))])
	}
	return b.String()
}

func pick(rng *rand.Rand, values []string, n int) []string {
	if n >= len(values) {
		out := make([]string, len(values))
		copy(out, values)
		return out
	}
	perm := rng.Perm(len(values))
	out := make([]string, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, values[idx])
	}
	return out
}

// sampleValues produces the placeholder values for one slot. Well-known
// system kinds and slot-name hints get plausible samples, value lists are
// sampled directly, regex entities get a bounded enumeration of their
// language, and everything else falls back to random text. All outputs are
// explicitly placeholders until an operator reviews them.
func sampleValues(slot string, entity schema.Entity, rng *rand.Rand, logger logging.Logger) []string {
	lower := strings.ToLower(slot + " " + entity.Name + " " + entity.System)
	switch {
	case entity.Kind == schema.EntityValueList && len(entity.Values) > 0:
		return pick(rng, entity.Values, 4)
	case entity.Kind == schema.EntityRegex && entity.Pattern != "":
		samples, err := enumerateRegex(entity.Pattern, maxRegexSamples, rng)
		if err != nil || len(samples) == 0 {
			logger.Warn("cannot enumerate regex entity %s (%v), using random text", entity.Name, err)
			return []string{randomText(rng, 6)}
		}
		return samples
	case strings.Contains(lower, "email"):
		return []string{
			fmt.Sprintf("%s.%s@example.com", strings.ToLower(pick(rng, firstNames, 1)[0]), strings.ToLower(pick(rng, lastNames, 1)[0])),
			"simuser@example.com",
		}
	case strings.Contains(lower, "phone"):
		return []string{fmt.Sprintf("415-555-%04d", rng.Intn(10000)), "650-555-0199"}
	case strings.Contains(lower, "first_name") || strings.Contains(lower, "firstname"):
		return pick(rng, firstNames, 3)
	case strings.Contains(lower, "last_name") || strings.Contains(lower, "lastname"):
		return pick(rng, lastNames, 3)
	case strings.Contains(lower, "name"):
		return []string{
			pick(rng, firstNames, 1)[0] + " " + pick(rng, lastNames, 1)[0],
			pick(rng, firstNames, 1)[0] + " " + pick(rng, lastNames, 1)[0],
		}
	case strings.Contains(lower, "boolean") || strings.Contains(lower, "confirm"):
		return []string{"yes", "no"}
	case strings.Contains(lower, "goodbye"):
		return []string{"goodbye", "ciao"}
	case strings.Contains(lower, "date"):
		return pick(rng, dates, 3)
	case strings.Contains(lower, "time"):
		return pick(rng, times, 3)
	case strings.Contains(lower, "currency") || strings.Contains(lower, "amount") || strings.Contains(lower, "price"):
		return []string{fmt.Sprintf("$%d.%02d", rng.Intn(500), rng.Intn(100)), "$19.99"}
	case strings.Contains(lower, "number"):
		return []string{fmt.Sprintf("%d", rng.Intn(100)), fmt.Sprintf("%d", rng.Intn(1000))}
	case strings.Contains(lower, "address"):
		return pick(rng, streets, 2)
	default:
		return []string{randomText(rng, 6)}
	}
}

// enumerateRegex generates up to n strings accepted by pattern by walking
// its parsed syntax tree. Unbounded repeats are capped at two iterations,
// so the enumeration always terminates.
func enumerateRegex(pattern string, n int, rng *rand.Rand) ([]string, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}
	re = re.Simplify()
	seen := map[string]bool{}
	var out []string
	for attempt := 0; attempt < n*4 && len(out) < n; attempt++ {
		var b strings.Builder
		generateFromRegexp(re, rng, &b, 0)
		s := b.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

const maxRegexDepth = 16

func generateFromRegexp(re *syntax.Regexp, rng *rand.Rand, b *strings.Builder, depth int) {
	if depth > maxRegexDepth {
		return
	}
	switch re.Op {
	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
	case syntax.OpCharClass:
		if len(re.Rune) >= 2 {
			// Rune holds [lo, hi] pairs; pick a pair, then a rune in it.
			pair := rng.Intn(len(re.Rune)/2) * 2
			lo, hi := re.Rune[pair], re.Rune[pair+1]
			b.WriteRune(lo + rune(rng.Int63n(int64(hi-lo+1))))
		}
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteRune(rune('a' + rng.Intn(26)))
	case syntax.OpCapture:
		for _, sub := range re.Sub {
			generateFromRegexp(sub, rng, b, depth+1)
		}
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			generateFromRegexp(sub, rng, b, depth+1)
		}
	case syntax.OpAlternate:
		generateFromRegexp(re.Sub[rng.Intn(len(re.Sub))], rng, b, depth+1)
	case syntax.OpStar:
		for i := 0; i < rng.Intn(3); i++ {
			generateFromRegexp(re.Sub[0], rng, b, depth+1)
		}
	case syntax.OpPlus:
		for i := 0; i < 1+rng.Intn(2); i++ {
			generateFromRegexp(re.Sub[0], rng, b, depth+1)
		}
	case syntax.OpQuest:
		if rng.Intn(2) == 1 {
			generateFromRegexp(re.Sub[0], rng, b, depth+1)
		}
	case syntax.OpRepeat:
		max := re.Max
		if max < 0 || max > re.Min+2 {
			max = re.Min + 2
		}
		count := re.Min
		if max > re.Min {
			count += rng.Intn(max - re.Min + 1)
		}
		for i := 0; i < count; i++ {
			generateFromRegexp(re.Sub[0], rng, b, depth+1)
		}
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		// No output.
	}
}
