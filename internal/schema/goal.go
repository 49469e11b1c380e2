package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SlotValue is a slot assignment inside a goal. A single value round-trips
// as a JSON string; multi-turn informs round-trip as an array and are
// consumed head-first by the simulator.
type SlotValue []string

func (v SlotValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

func (v *SlotValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = SlotValue{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("slot value must be string or string array: %s", data)
	}
	*v = many
	return nil
}

// First returns the head value, or empty when exhausted.
func (v SlotValue) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// The inform slot carrying the user's first-turn probe sentence, and the
// sentinel request value meaning "value unknown, bot should fulfil it".
const (
	IntentSlot  = "intent"
	UnknownSlot = "UNK"
)

// Goal is the structured objective the simulator pursues during one session.
type Goal struct {
	Name             string               `json:"name"`
	RequestSlots     map[string]string    `json:"request_slots"`
	InformSlots      map[string]SlotValue `json:"inform_slots"`
	SubsequentIntent string               `json:"subsequent_intent,omitempty"`
}

// Probe returns the paraphrase sentence used on the first user turn.
func (g Goal) Probe() string {
	return g.InformSlots[IntentSlot].First()
}

// Clone deep-copies the goal so a session can consume inform lists without
// mutating the shared goal set.
func (g Goal) Clone() Goal {
	out := Goal{Name: g.Name, SubsequentIntent: g.SubsequentIntent}
	out.RequestSlots = make(map[string]string, len(g.RequestSlots))
	for k, v := range g.RequestSlots {
		out.RequestSlots[k] = v
	}
	out.InformSlots = make(map[string]SlotValue, len(g.InformSlots))
	for k, v := range g.InformSlots {
		vals := make(SlotValue, len(v))
		copy(vals, v)
		out.InformSlots[k] = vals
	}
	return out
}

// GoalSet is the persisted goal artifact for one (intent, mode).
type GoalSet struct {
	Goals map[string]Goal `json:"Goal"`
}

// Ordered returns goal names sorted so simulation order is reproducible.
func (s GoalSet) Ordered() []string {
	names := make([]string, 0, len(s.Goals))
	for name := range s.Goals {
		names = append(names, name)
	}
	sortByEpisodeIndex(names)
	return names
}

func writeFileMkdir(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
