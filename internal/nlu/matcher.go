// Package nlu implements the template NLU: fuzzy matching of a bot message
// against the exemplar messages registered in a dialog-act map.
package nlu

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sergi/go-diff/diffmatchpatch"

	"botsim/internal/logging"
	"botsim/internal/schema"
)

// Match is the result of matching one bot message for a target dialog.
type Match struct {
	Act      string
	Exemplar string
	Score    int
	// Ties lists every act sharing the top score, in sorted order. It
	// always contains Act when a match was found.
	Ties []string
}

var (
	placeholderPattern = regexp.MustCompile(`\$.*?\$`)
	bracketPattern     = regexp.MustCompile(`\[.*?\]`)
)

// normalize strips template placeholders and bracketed fragments so scoring
// compares only the fixed wording of a message.
func normalize(message string) string {
	out := placeholderPattern.ReplaceAllString(message, "$$")
	out = bracketPattern.ReplaceAllString(out, "")
	return strings.ToLower(strings.TrimSpace(out))
}

const defaultCacheSize = 4096

// Matcher scores bot messages against the dialog-act map.
type Matcher struct {
	actMap schema.DialogActMap
	dmp    *diffmatchpatch.DiffMatchPatch
	cache  *lru.Cache[string, Match]
	logger logging.Logger
}

// NewMatcher builds a matcher over the (reviewed) dialog-act map. Scores are
// memoized per (message, dialog) since the driver re-checks the same bot
// prompts across many sessions.
func NewMatcher(actMap schema.DialogActMap, logger logging.Logger) *Matcher {
	cache, _ := lru.New[string, Match](defaultCacheSize)
	return &Matcher{
		actMap: actMap,
		dmp:    diffmatchpatch.New(),
		cache:  cache,
		logger: logging.OrNop(logger),
	}
}

// Score returns a normalized similarity in [0, 100] between two strings,
// based on the Levenshtein distance over their diff.
func (m *Matcher) Score(a, b string) int {
	a, b = normalize(a), normalize(b)
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	diffs := m.dmp.DiffMain(a, b, false)
	distance := m.dmp.DiffLevenshtein(diffs)
	score := 100 * (longest - distance) / longest
	if score < 0 {
		score = 0
	}
	return score
}

// Match finds the best dialog act for message within the target dialog.
// When the dialog has no registered acts the zero Match is returned and the
// caller must discard the session.
func (m *Matcher) Match(message, dialog string) Match {
	key := dialog + "\x00" + message
	if cached, ok := m.cache.Get(key); ok {
		return cached
	}

	acts := m.actMap[dialog]
	if len(acts) == 0 {
		m.logger.Warn("no dialog acts registered for dialog %q", dialog)
		return Match{}
	}

	names := make([]string, 0, len(acts))
	for name := range acts {
		names = append(names, name)
	}
	sort.Strings(names)

	best := Match{}
	scoreToActs := map[int][]string{}
	for _, act := range names {
		for _, exemplar := range acts[act] {
			score := m.Score(message, exemplar)
			existing := scoreToActs[score]
			if len(existing) == 0 || existing[len(existing)-1] != act {
				scoreToActs[score] = append(existing, act)
			}
			if score > best.Score || best.Act == "" {
				best = Match{Act: act, Exemplar: exemplar, Score: score}
			}
		}
	}
	best.Ties = scoreToActs[best.Score]

	m.cache.Add(key, best)
	return best
}

// BestScore returns the top similarity of message against any exemplar of
// dialog, used for cross-intent confusion checks.
func (m *Matcher) BestScore(message, dialog string) int {
	return m.Match(message, dialog).Score
}

// Dialogs lists the dialogs the matcher knows about, sorted.
func (m *Matcher) Dialogs() []string {
	return m.actMap.Dialogs()
}

// Acts returns the act map for one dialog.
func (m *Matcher) Acts(dialog string) schema.ActMap {
	return m.actMap[dialog]
}
