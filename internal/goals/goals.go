// Package goals synthesizes simulation goals from paraphrased intent
// queries and sampled ontology values.
package goals

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"botsim/internal/logging"
	"botsim/internal/schema"
)

// Paraphrases maps each seed utterance to its candidate paraphrases, as
// returned by the paraphrase collaborator.
type Paraphrases map[string][]string

// Mode selects the dev or eval half of a paraphrase split.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeEval Mode = "eval"
)

// Modes lists both split halves in canonical order.
func Modes() []Mode {
	return []Mode{ModeDev, ModeEval}
}

// Split divides candidates per seed into dev and eval by an independent
// Bernoulli(devRatio) draw per candidate. Seeds are visited in sorted
// order, so a fixed rng seed reproduces the split.
func Split(paraphrases Paraphrases, devRatio float64, rng *rand.Rand) (dev, eval []string) {
	seeds := make([]string, 0, len(paraphrases))
	for seed := range paraphrases {
		seeds = append(seeds, seed)
	}
	sort.Strings(seeds)
	for _, seed := range seeds {
		for _, candidate := range paraphrases[seed] {
			if rng.Float64() < devRatio {
				dev = append(dev, candidate)
			} else {
				eval = append(eval, candidate)
			}
		}
	}
	return dev, eval
}

// anythingElseValue forces the closing "anything else?" loop to exit.
const anythingElseValue = "no"

// Create builds one goal per candidate paraphrase for an intent. Each goal
// requests the intent itself, informs the probe sentence, and informs one
// uniformly sampled value per ontology slot.
func Create(intent string, ontology schema.Ontology, candidates []string, rng *rand.Rand) schema.GoalSet {
	set := schema.GoalSet{Goals: map[string]schema.Goal{}}
	slots := make([]string, 0, len(ontology[intent]))
	for slot := range ontology[intent] {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	for index, candidate := range candidates {
		goal := schema.Goal{
			Name:         intent,
			RequestSlots: map[string]string{intent: schema.UnknownSlot},
			InformSlots:  map[string]schema.SlotValue{},
		}
		for _, slot := range slots {
			values := ontology[intent][slot]
			if len(values) == 0 {
				continue
			}
			value := values[rng.Intn(len(values))]
			if strings.Contains(slot, "Anything_Else") {
				value = anythingElseValue
			}
			goal.InformSlots[slot] = schema.SlotValue{value}
		}
		goal.InformSlots[schema.IntentSlot] = schema.SlotValue{candidate}
		set.Goals[fmt.Sprintf("%s_%d", intent, index)] = goal
	}
	return set
}

// Transitioner exposes the conversation-graph queries compound goal
// synthesis needs.
type Transitioner interface {
	SimplePathExists(from, to string) bool
	TransitionConditions(from, to string) []string
}

// CreateCompound builds multi-intent goals: for every candidate of the
// first intent, a goal carrying a subsequent_intent probe drawn from the
// second intent's seeds. Transition conditions of the connecting edges
// contribute confirm answers ("== true" means yes, "== false" means no).
func CreateCompound(first, second string, ontology schema.Ontology, candidates, secondSeeds []string,
	trans Transitioner, rng *rand.Rand, logger logging.Logger) schema.GoalSet {
	logger = logging.OrNop(logger)
	set := schema.GoalSet{Goals: map[string]schema.Goal{}}
	if len(secondSeeds) == 0 {
		logger.Warn("intent %s has no seed utterances, skipping compound goals with %s", second, first)
		return set
	}
	if trans != nil && !trans.SimplePathExists(first, second) {
		logger.Debug("no path from %s to %s, skipping compound goals", first, second)
		return set
	}

	base := Create(first, ontology, candidates, rng)
	for index, name := range base.Ordered() {
		goal := base.Goals[name]
		goal.SubsequentIntent = secondSeeds[rng.Intn(len(secondSeeds))]
		if trans != nil {
			for _, cond := range trans.TransitionConditions(first, second) {
				slot, value, ok := confirmAnswer(cond)
				if !ok {
					continue
				}
				goal.InformSlots[slot] = schema.SlotValue{value}
			}
		}
		set.Goals[fmt.Sprintf("%s_%s_%d", first, second, index)] = goal
	}
	return set
}

// confirmAnswer maps a boolean transition condition to the yes/no answer
// that satisfies it.
func confirmAnswer(condition string) (slot, value string, ok bool) {
	fields := strings.SplitN(condition, "==", 2)
	if len(fields) != 2 {
		return "", "", false
	}
	slot = strings.TrimSpace(fields[0])
	switch strings.TrimSpace(fields[1]) {
	case "true":
		return slot, "yes", true
	case "false":
		return slot, "no", true
	default:
		return "", "", false
	}
}
