package remediator

import (
	"fmt"
	"sort"

	"botsim/internal/schema"
)

// Remediation hint generation. Hints are human-readable and targeted at
// the bot builder; they never modify the bot under test.

// moveThreshold is the fraction of a seed's wrong predictions that must
// agree before a move or filter suggestion fires.
const moveThreshold = 0.5

// intentSuggestions emits per-seed hints from the grouped wrong
// predictions.
func (r *Remediator) intentSuggestions(intent string, seedPredictions map[string]map[string]int) []string {
	seeds := make([]string, 0, len(seedPredictions))
	for seed := range seedPredictions {
		seeds = append(seeds, seed)
	}
	sort.Strings(seeds)

	var out []string
	for _, seed := range seeds {
		predictions := seedPredictions[seed]
		total := 0
		for _, count := range predictions {
			total += count
		}
		if total == 0 {
			continue
		}

		dominant, dominantCount := "", 0
		for _, predicted := range sortedPredictionKeys(predictions) {
			if predictions[predicted] > dominantCount {
				dominant, dominantCount = predicted, predictions[predicted]
			}
		}

		switch {
		case dominant != OutOfDomain && float64(dominantCount)/float64(total) > moveThreshold:
			out = append(out, fmt.Sprintf(
				"Most paraphrases of %q were classified as %q: consider moving this training utterance from %q to %q.",
				seed, dominant, intent, dominant))
		case dominant == OutOfDomain && float64(dominantCount)/float64(total) > moveThreshold:
			out = append(out, fmt.Sprintf(
				"Most paraphrases of %q were not recognized at all: filter out unnatural paraphrases and augment %q with more varied training utterances.",
				seed, intent))
		default:
			// No prediction dominates; the operator has to look at the
			// paraphrase list itself.
			out = append(out, fmt.Sprintf(
				"Review the paraphrases of %q: %d of them probed a different classification than %q.",
				seed, total, intent))
		}
	}
	return out
}

// nerSuggestions emits hints for one erring slot, specialized by the
// entity's extraction kind.
func (r *Remediator) nerSuggestions(slot string) []string {
	name, entityName := schema.SplitSlotKey(slot)
	entity, known := r.lookupEntity(name, entityName)
	if !known {
		return []string{fmt.Sprintf(
			"The bot failed to extract %q: verify the entity backing this slot and consider model-based extraction.", slot)}
	}
	switch entity.Kind {
	case schema.EntityRegex:
		return []string{
			fmt.Sprintf("Revise the regular expression of entity %q: informed values did not match.", entity.Name),
			fmt.Sprintf("If the value space of %q is too irregular for a pattern, switch to model-based extraction.", entity.Name),
		}
	case schema.EntityValueList:
		return []string{
			fmt.Sprintf("Extend the value list of entity %q with the phrasings users actually inform.", entity.Name),
			fmt.Sprintf("Alternatively define a pattern or model-based extractor for %q.", entity.Name),
		}
	default:
		return []string{fmt.Sprintf(
			"Verify that system entity %q covers the format of the informed values.", entity.Name)}
	}
}

func (r *Remediator) lookupEntity(slot, entityName string) (schema.Entity, bool) {
	if entityName != "" {
		if entity, ok := r.entities[entityName]; ok {
			return entity, true
		}
	}
	if entity, ok := r.entities[slot]; ok {
		return entity, true
	}
	return schema.Entity{}, false
}

func sortedPredictionKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
