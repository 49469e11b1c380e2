// Package nlg renders user semantic frames into natural-language utterances
// by slot substitution over response templates.
package nlg

import (
	"fmt"
	"sort"
	"strings"

	"botsim/internal/errors"
	"botsim/internal/schema"
)

// Frame is a semantic frame to be rendered: a dialog action plus the slots
// it informs and requests.
type Frame struct {
	Action       string            `json:"action"`
	InformSlots  map[string]string `json:"inform_slots"`
	RequestSlots map[string]string `json:"request_slots"`
}

// Template is one response template. It applies only to frames whose inform
// and request slot sets equal the declared ones exactly.
type Template struct {
	InformSlots  []string          `json:"inform_slots"`
	RequestSlots []string          `json:"request_slots"`
	NL           map[string]string `json:"nl"`
}

// TemplateSet is the persisted template.json artifact, keyed by action.
type TemplateSet struct {
	DiaActs map[string][]Template `json:"dia_acts"`
}

// Renderer selects and fills templates for one bot's template set.
type Renderer struct {
	set TemplateSet
}

// NewRenderer wraps a template set.
func NewRenderer(set TemplateSet) *Renderer {
	return &Renderer{set: set}
}

func sameSlotSet(declared []string, frame map[string]string) bool {
	if len(declared) != len(frame) {
		return false
	}
	for _, slot := range declared {
		if _, ok := frame[slot]; !ok {
			return false
		}
	}
	return true
}

// Render produces the natural-language utterance for a frame and role, plus
// the slot-annotated twin used for error backtracking. A frame with no
// matching template is a specification error in the template file and fails
// loudly.
func (r *Renderer) Render(frame Frame, role schema.Speaker) (plain, annotated string, err error) {
	roleKey := "usr"
	if role == schema.SpeakerBot {
		roleKey = "agt"
	}
	for _, tmpl := range r.set.DiaActs[frame.Action] {
		if !sameSlotSet(tmpl.InformSlots, frame.InformSlots) {
			continue
		}
		if !sameSlotSet(tmpl.RequestSlots, frame.RequestSlots) {
			continue
		}
		text, ok := tmpl.NL[roleKey]
		if !ok {
			continue
		}
		plain, annotated = fill(text, frame.InformSlots)
		return plain, annotated, nil
	}
	return "", "", errors.NewConfigError(
		"render frame", "",
		fmt.Errorf("no %s template for action %q with inform=%v request=%v",
			roleKey, frame.Action, slotNames(frame.InformSlots), slotNames(frame.RequestSlots)))
}

// fill substitutes every $slot$ occurrence with the slot value. The
// annotated twin substitutes @slot:"value" instead.
func fill(text string, informSlots map[string]string) (plain, annotated string) {
	plain, annotated = text, text
	for slot, value := range informSlots {
		placeholder := "$" + slot + "$"
		plain = strings.ReplaceAll(plain, placeholder, value)
		annotated = strings.ReplaceAll(annotated, placeholder, fmt.Sprintf("@%s:%q", slot, value))
	}
	return plain, annotated
}

func slotNames(slots map[string]string) []string {
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StarterTemplates builds the auto-generated template set the parser writes
// alongside the act map: a probe template per dialog, one inform template
// per slot, and a closing thanks frame. Operators refine it before
// simulation.
func StarterTemplates(ontology schema.Ontology) TemplateSet {
	set := TemplateSet{DiaActs: map[string][]Template{}}

	set.DiaActs["inform"] = append(set.DiaActs["inform"], Template{
		InformSlots:  []string{schema.IntentSlot},
		RequestSlots: []string{},
		NL:           map[string]string{"usr": "$intent$"},
	})

	seen := map[string]bool{}
	for _, dialog := range sortedKeys(ontology) {
		for _, key := range sortedKeys(ontology[dialog]) {
			slot, _ := schema.SplitSlotKey(key)
			if seen[slot] {
				continue
			}
			seen[slot] = true
			set.DiaActs["inform"] = append(set.DiaActs["inform"], Template{
				InformSlots:  []string{slot},
				RequestSlots: []string{},
				NL:           map[string]string{"usr": "$" + slot + "$."},
			})
		}
	}

	set.DiaActs["thanks"] = []Template{{
		InformSlots:  []string{},
		RequestSlots: []string{},
		NL:           map[string]string{"usr": "thanks, goodbye"},
	}}
	set.DiaActs["affirm"] = []Template{{
		InformSlots:  []string{},
		RequestSlots: []string{},
		NL:           map[string]string{"usr": "yes"},
	}}
	set.DiaActs["deny"] = []Template{{
		InformSlots:  []string{},
		RequestSlots: []string{},
		NL:           map[string]string{"usr": "no"},
	}}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
