// Package remediator ingests persisted chat logs and error records, derives
// what the bot actually classified, and produces per-intent error
// taxonomies, remediation hints, and the intent confusion matrix.
package remediator

import (
	"fmt"
	"sort"
	"strings"

	"botsim/internal/errors"
	"botsim/internal/logging"
	"botsim/internal/nlu"
	"botsim/internal/schema"
)

// OutOfDomain is the pseudo-intent for probes the bot rejected entirely.
const OutOfDomain = "out_of_domain"

// defaultFallback seeds the out-of-domain row even when no dialog declared
// a fallback message.
const defaultFallback = "Sorry, I didn't understand that"

// Config tunes the analysis.
type Config struct {
	// IntentCheckTurn is the chat-log turn index holding the bot's
	// classification response, matching the simulator knob.
	IntentCheckTurn int
	// MaxTies is how many tied candidates may include the target intent
	// before a match stops counting as a success.
	MaxTies int
}

// DefaultConfig mirrors the simulator default.
func DefaultConfig() Config {
	return Config{IntentCheckTurn: 2, MaxTies: 2}
}

// Remediator analyzes one bot's simulation artifacts. It never fails the
// run on a single bad session: inconsistent inputs are logged and skipped.
type Remediator struct {
	cfg     Config
	matcher *nlu.Matcher
	// successMessages maps each intent (plus OutOfDomain) to the bot
	// messages that acknowledge it.
	successMessages map[string][]string
	entities        map[string]schema.Entity
	logger          logging.Logger
}

// New builds a remediator over the reviewed act map. The entity index may
// be nil when entity definitions are unavailable.
func New(cfg Config, actMap schema.DialogActMap, entities map[string]schema.Entity, logger logging.Logger) *Remediator {
	if cfg.MaxTies <= 0 {
		cfg.MaxTies = 2
	}
	success := map[string][]string{OutOfDomain: {defaultFallback}}
	for dialog, acts := range actMap {
		success[dialog] = append([]string(nil), acts[schema.ActIntentSuccess]...)
		success[OutOfDomain] = append(success[OutOfDomain], acts[schema.ActIntentFailure]...)
	}
	return &Remediator{
		cfg:             cfg,
		matcher:         nlu.NewMatcher(actMap, logger),
		successMessages: success,
		entities:        entities,
		logger:          logging.OrNop(logger),
	}
}

// IntentInputs is everything the remediator needs for one (intent, mode).
type IntentInputs struct {
	Intent string
	Mode   string
	Logs   schema.SessionLogFile
	Errors schema.ErrorRecordFile
	// Paraphrases maps seed utterances to their candidates, used to group
	// wrong predictions back to the seed that produced them.
	Paraphrases map[string][]string
}

// IntentReport is the per-(intent, mode) analysis output.
type IntentReport struct {
	Intent  string            `json:"intent"`
	Mode    string            `json:"mode"`
	Summary schema.RunSummary `json:"summary"`
	// Predictions counts what the bot classified per predicted intent.
	Predictions map[string]int `json:"predictions"`
	// ParaphraseToIntent records the predicted intent per failing probe.
	ParaphraseToIntent map[string]string `json:"paraphrase_to_intent"`
	// SeedPredictions groups wrong predictions per seed utterance.
	SeedPredictions map[string]map[string]int `json:"seed_predictions"`
	// IntentSuggestions are per-seed remediation hints.
	IntentSuggestions []string `json:"intent_suggestions"`
	// NERSuggestions are per-slot extraction remediation hints.
	NERSuggestions map[string][]string `json:"ner_suggestions"`
	// Skipped counts sessions dropped for inconsistent inputs.
	Skipped int `json:"skipped"`
}

// AnalyzeIntent re-derives outcomes from the persisted chat logs, assigns
// intent predictions, and emits remediation hints. It is idempotent over
// its inputs.
func (r *Remediator) AnalyzeIntent(in IntentInputs) *IntentReport {
	report := &IntentReport{
		Intent:             in.Intent,
		Mode:               in.Mode,
		Predictions:        map[string]int{},
		ParaphraseToIntent: map[string]string{},
		SeedPredictions:    map[string]map[string]int{},
		NERSuggestions:     map[string][]string{},
	}
	nerSlots := map[string]bool{}

	episodes := make([]int, 0, len(in.Logs.Episodes))
	for idx := range in.Logs.Episodes {
		episodes = append(episodes, idx)
	}
	sort.Ints(episodes)

	for _, idx := range episodes {
		episode := in.Logs.Episodes[idx]
		outcome, err := r.episodeOutcome(idx, episode)
		if err != nil {
			r.logger.Warn("%v", err)
			report.Skipped++
			continue
		}

		switch outcome.Kind {
		case schema.OutcomeSuccess:
			report.Predictions[in.Intent]++
		case schema.OutcomeIntent:
			predicted, probe := r.classify(idx, episode, in)
			report.Predictions[predicted]++
			if predicted != in.Intent {
				report.ParaphraseToIntent[probe] = predicted
				seed := findSeed(probe, in.Paraphrases)
				if report.SeedPredictions[seed] == nil {
					report.SeedPredictions[seed] = map[string]int{}
				}
				report.SeedPredictions[seed][predicted]++
			}
		case schema.OutcomeNER:
			// NER sessions got past intent recognition.
			report.Predictions[in.Intent]++
			for _, ne := range r.nerErrors(idx, in.Errors) {
				nerSlots[ne.Slot] = true
			}
		case schema.OutcomeOther:
			report.Predictions[in.Intent]++
		}
		report.Summary.Add(outcome)
	}

	report.IntentSuggestions = r.intentSuggestions(in.Intent, report.SeedPredictions)
	for slot := range nerSlots {
		report.NERSuggestions[slot] = r.nerSuggestions(slot)
	}
	return report
}

// episodeOutcome parses the terminal summary line of one chat log and
// cross-checks it against the error records.
func (r *Remediator) episodeOutcome(idx int, episode schema.EpisodeLog) (schema.SessionOutcome, error) {
	if len(episode.ChatLog) == 0 {
		return schema.SessionOutcome{}, &errors.AnalyzeError{Session: idx, Err: fmt.Errorf("empty chat log")}
	}
	last := episode.ChatLog[len(episode.ChatLog)-1]
	if !schema.IsSummaryLine(last) {
		return schema.SessionOutcome{}, &errors.AnalyzeError{Session: idx, Err: fmt.Errorf("chat log has no summary line")}
	}
	_, outcome, err := schema.ParseSummaryLine(last)
	if err != nil {
		return schema.SessionOutcome{}, &errors.AnalyzeError{Session: idx, Err: err}
	}
	return outcome, nil
}

// classify re-derives what the bot actually classified for an intent-error
// session by matching the bot's intent-check response over the union of
// success messages across all intents.
func (r *Remediator) classify(idx int, episode schema.EpisodeLog, in IntentInputs) (predicted, probe string) {
	probe = r.probeUtterance(episode)
	message, ok := r.turnUtterance(episode, r.cfg.IntentCheckTurn)
	if !ok {
		r.logger.Warn("session %d has no turn %d, predicting %s", idx, r.cfg.IntentCheckTurn, OutOfDomain)
		return OutOfDomain, probe
	}

	best, ties := r.matchIntent(message)
	switch {
	case len(ties) <= r.cfg.MaxTies && contains(ties, in.Intent):
		return in.Intent, probe
	case len(ties) == 1:
		return best, probe
	default:
		return OutOfDomain, probe
	}
}

// matchIntent fuzzy-matches a bot message against every intent's success
// messages and returns the best intent plus all ties at the top score.
func (r *Remediator) matchIntent(message string) (string, []string) {
	normalized := normalizePunctuation(message)
	best, bestScore := OutOfDomain, -1
	var ties []string
	intents := make([]string, 0, len(r.successMessages))
	for intent := range r.successMessages {
		intents = append(intents, intent)
	}
	sort.Strings(intents)

	for _, intent := range intents {
		score := -1
		for _, exemplar := range r.successMessages[intent] {
			if s := r.matcher.Score(normalized, exemplar); s > score {
				score = s
			}
		}
		if score > bestScore {
			best, bestScore = intent, score
			ties = []string{intent}
		} else if score == bestScore {
			ties = append(ties, intent)
		}
	}
	return best, ties
}

// probeUtterance finds the user's initial probe in the transcript, two
// turns before the intent check.
func (r *Remediator) probeUtterance(episode schema.EpisodeLog) string {
	if utt, ok := r.turnUtterance(episode, r.cfg.IntentCheckTurn-2); ok {
		return utt
	}
	return ""
}

func (r *Remediator) turnUtterance(episode schema.EpisodeLog, round int) (string, bool) {
	for _, line := range episode.ChatLog {
		if schema.IsSummaryLine(line) {
			continue
		}
		turn, err := schema.ParseChatLine(line)
		if err != nil {
			continue
		}
		if turn.Round == round {
			return turn.Utterance, true
		}
	}
	return "", false
}

// nerErrors decodes the slot errors recorded for one session.
func (r *Remediator) nerErrors(idx int, records schema.ErrorRecordFile) []schema.NERSlotError {
	record, ok := records[fmt.Sprintf("%d", idx)]
	if !ok {
		return nil
	}
	_, outcome, err := schema.DecodeErrorInfo(record.ErrorInfo)
	if err != nil {
		r.logger.Warn("session %d has malformed error_info: %v", idx, err)
		return nil
	}
	return outcome.NERErrors
}

// findSeed maps a paraphrase back to the seed utterance that produced it.
// Seeds map to themselves; unknown probes fall back to their own text.
func findSeed(probe string, paraphrases map[string][]string) string {
	if _, ok := paraphrases[probe]; ok {
		return probe
	}
	for seed, candidates := range paraphrases {
		for _, candidate := range candidates {
			if candidate == probe {
				return seed
			}
		}
	}
	return probe
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

var punctuationFixes = strings.NewReplacer("..", ".", "?.", "?", "!.", "!", "  ", " ")

// normalizePunctuation smooths the artifacts of message concatenation
// before fuzzy matching.
func normalizePunctuation(s string) string {
	return strings.TrimSpace(punctuationFixes.Replace(s))
}
