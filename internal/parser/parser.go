package parser

import (
	"math/rand"
	"sort"

	"botsim/internal/graph"
	"botsim/internal/logging"
	"botsim/internal/schema"
)

// Options tunes parsing.
type Options struct {
	// MaxPaths caps simple-path enumeration during act-map aggregation so
	// cyclic graphs terminate. Zero means DefaultMaxPaths.
	MaxPaths int
	// Rand drives ontology sampling. Nil means a fixed seed, so reruns on
	// unchanged input produce identical artifacts.
	Rand *rand.Rand
}

// DefaultMaxPaths bounds path enumeration per (dialog, terminal) pair.
const DefaultMaxPaths = 200

// Result bundles every artifact the parser produces.
type Result struct {
	// ActMap is the aggregated per-intent dialog-act map used as the
	// template NLU.
	ActMap schema.DialogActMap
	// LocalActMap keeps the pre-aggregation per-dialog maps for review.
	LocalActMap schema.DialogActMap
	Ontology    schema.Ontology
	Graph       *graph.MultiGraph
	// SuccessInforms lists, per dialog, the slots echoed in its success
	// messages.
	SuccessInforms map[string][]string
	// Utterances holds the training phrases per intent dialog.
	Utterances map[string][]string
	// Entities indexes the bundle's entity definitions for operator
	// review.
	Entities map[string]schema.Entity
	// Excluded lists dialogs flagged out of simulation (unresolvable
	// entities).
	Excluded []string
}

// Parse runs the full pipeline: local act maps, conversation graph, act-map
// aggregation by graph reachability, and ontology synthesis.
func Parse(bundle Bundle, opts Options, logger logging.Logger) (*Result, error) {
	logger = logging.OrNop(logger)
	bundle.applyDefaults()
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxPaths <= 0 {
		opts.MaxPaths = DefaultMaxPaths
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	res := &Result{
		ActMap:         schema.DialogActMap{},
		LocalActMap:    schema.DialogActMap{},
		Ontology:       schema.Ontology{},
		Graph:          graph.New(),
		SuccessInforms: map[string][]string{},
		Utterances:     map[string][]string{},
	}

	for _, dialog := range bundle.Dialogs {
		res.LocalActMap[dialog.Name] = localActs(dialog)
		if informs := successInforms(dialog); len(informs) > 0 {
			res.SuccessInforms[dialog.Name] = informs
		}
		res.Graph.AddNode(dialog.Name)
		for _, step := range dialog.Steps {
			if step.Kind != StepNavigation && step.Kind != StepInvoke {
				continue
			}
			for _, target := range step.Targets {
				res.Graph.AddEdge(dialog.Name, target.To, target.Condition)
			}
		}
	}

	entities := bundle.entityByName()
	res.Entities = entities
	excluded := map[string]bool{}

	for _, set := range bundle.Intents {
		res.Utterances[set.Dialog] = append([]string(nil), set.Utterances...)
		aggregated := copyActMap(res.LocalActMap[set.Dialog])

		// Union in acts from direct successors and every interior node of
		// a simple path to the terminal dialog, so the NLU recognizes any
		// act a legitimate continuation might emit.
		reachable := map[string]bool{}
		for _, succ := range res.Graph.Successors(set.Dialog) {
			reachable[succ] = true
		}
		for _, node := range res.Graph.Interior(set.Dialog, bundle.TerminalDialog, opts.MaxPaths) {
			reachable[node] = true
		}
		for node := range reachable {
			if node == bundle.TerminalDialog || node == bundle.ConfusedDialog {
				continue
			}
			mergeActs(aggregated, res.LocalActMap[node])
		}

		// The welcome dialog's closing prompt is what the user answers
		// with the intent probe; model it as a request for the intent.
		if welcome, ok := res.LocalActMap[bundle.WelcomeDialog]; ok {
			if greetings := welcome[schema.ActDialogSuccess]; len(greetings) > 0 {
				aggregated[schema.ActRequestIntent] = append([]string(nil), greetings...)
			}
		}
		// The terminal dialog's last words extend the success exemplars.
		if terminal, ok := res.LocalActMap[bundle.TerminalDialog]; ok {
			mergeActs(aggregated, schema.ActMap{
				schema.ActDialogSuccess: terminal[schema.ActDialogSuccess],
			})
		}
		// The fallback dialog's acknowledgement is the failure exemplar.
		if confused, ok := res.LocalActMap[bundle.ConfusedDialog]; ok {
			if fallback := confused[schema.ActIntentSuccess]; len(fallback) > 0 {
				aggregated[schema.ActIntentFailure] = append([]string(nil), fallback...)
			}
		}

		res.ActMap[set.Dialog] = aggregated

		// Ontology: one entry per request act, synthetic values.
		slots := map[string][]string{}
		for act := range aggregated {
			slot, entityName, ok := schema.IsRequest(act)
			if !ok || slot == schema.IntentSlot {
				continue
			}
			entity, found := entities[entityName]
			if !found && entityName != "" {
				logger.Warn("dialog %s requests %s via unknown entity %s, excluding from simulation",
					set.Dialog, slot, entityName)
				excluded[set.Dialog] = true
				continue
			}
			key := slot
			if entityName != "" {
				key = slot + "@" + entityName
			}
			slots[key] = sampleValues(slot, entity, rng, logger)
		}
		res.Ontology[set.Dialog] = slots
	}

	for name := range excluded {
		res.Excluded = append(res.Excluded, name)
		delete(res.ActMap, name)
		delete(res.Ontology, name)
	}
	sort.Strings(res.Excluded)

	logger.Info("parsed %d dialogs, %d intents, %d excluded",
		len(bundle.Dialogs), len(bundle.Intents), len(res.Excluded))
	return res, nil
}
