package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ActMap holds the template NLU table for one dialog: act name to exemplar
// bot messages.
type ActMap map[string][]string

// DialogActMap maps dialog name to its act map.
type DialogActMap map[string]ActMap

// Dialogs returns dialog names in sorted order.
func (m DialogActMap) Dialogs() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntityKind distinguishes how an entity's values are extracted.
type EntityKind string

const (
	EntityValueList EntityKind = "value_list"
	EntityRegex     EntityKind = "regex"
	EntitySystem    EntityKind = "system"
)

// Entity is a custom or system entity definition from the bot bundle.
type Entity struct {
	Name    string     `json:"name"`
	Kind    EntityKind `json:"kind"`
	Values  []string   `json:"values,omitempty"`
	Pattern string     `json:"pattern,omitempty"`
	System  string     `json:"system,omitempty"`
}

// Ontology maps dialog name to slot key ("slot@Entity") to sample values.
// The parser fills it with synthetic placeholders; an operator overwrites
// the values before simulation.
type Ontology map[string]map[string][]string

// Validate checks that every request act in the act map has a non-empty
// ontology entry for its dialog.
func (o Ontology) Validate(actMap DialogActMap) error {
	for dialog, acts := range actMap {
		for act := range acts {
			slot, entity, ok := IsRequest(act)
			if !ok || slot == "intent" {
				continue
			}
			key := slot
			if entity != "" {
				key = slot + "@" + entity
			}
			values, found := o[dialog][key]
			if !found || len(values) == 0 {
				return fmt.Errorf("ontology has no values for %s in dialog %s", key, dialog)
			}
		}
	}
	return nil
}

// LoadJSON reads a JSON artifact into out.
func LoadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes v as indented JSON, creating the file's directory first.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileMkdir(path, append(data, '\n'))
}
