// Package parser turns a raw bot definition into the artifacts the
// simulator consumes: a per-dialog dialog-act map, the conversation
// multigraph, and an entity ontology.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"botsim/internal/schema"
)

// StepKind classifies one raw design step inside a dialog.
type StepKind string

const (
	StepMessage    StepKind = "message"
	StepCollect    StepKind = "collect"
	StepCondition  StepKind = "condition"
	StepNavigation StepKind = "navigation"
	StepInvoke     StepKind = "invoke"
)

// NavTarget is one navigation destination with its guarding condition.
type NavTarget struct {
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Step is a platform-neutral design step. Vendor bundle readers produce
// these; the parser consumes them without further vendor knowledge.
type Step struct {
	Kind StepKind `json:"kind" yaml:"kind"`
	// Message text for StepMessage.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
	// Collect fields for StepCollect.
	Slot          string   `json:"slot,omitempty" yaml:"slot,omitempty"`
	Entity        string   `json:"entity,omitempty" yaml:"entity,omitempty"`
	Prompt        string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	RetryMessages []string `json:"retry_messages,omitempty" yaml:"retry_messages,omitempty"`
	// Navigation and invoke targets.
	Targets []NavTarget `json:"targets,omitempty" yaml:"targets,omitempty"`
	// Condition expression for StepCondition.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// RawDialog is one dialog with its ordered steps.
type RawDialog struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// IntentSet binds a dialog to its training utterances.
type IntentSet struct {
	Dialog     string   `json:"dialog" yaml:"dialog"`
	Utterances []string `json:"utterances" yaml:"utterances"`
}

// Bundle is the abstract bot definition a vendor-specific reader yields.
type Bundle struct {
	Name     string          `json:"name" yaml:"name"`
	Dialogs  []RawDialog     `json:"dialogs" yaml:"dialogs"`
	Intents  []IntentSet     `json:"intents" yaml:"intents"`
	Entities []schema.Entity `json:"entities" yaml:"entities"`
	// Special dialogs. Defaults: Welcome, Confused, End_Chat.
	WelcomeDialog  string `json:"welcome_dialog,omitempty" yaml:"welcome_dialog,omitempty"`
	ConfusedDialog string `json:"confused_dialog,omitempty" yaml:"confused_dialog,omitempty"`
	TerminalDialog string `json:"terminal_dialog,omitempty" yaml:"terminal_dialog,omitempty"`
}

func (b *Bundle) applyDefaults() {
	if b.WelcomeDialog == "" {
		b.WelcomeDialog = "Welcome"
	}
	if b.ConfusedDialog == "" {
		b.ConfusedDialog = "Confused"
	}
	if b.TerminalDialog == "" {
		b.TerminalDialog = "End_Chat"
	}
}

// Validate checks structural consistency before parsing.
func (b *Bundle) Validate() error {
	if len(b.Dialogs) == 0 {
		return fmt.Errorf("bundle %q has no dialogs", b.Name)
	}
	names := map[string]bool{}
	for _, d := range b.Dialogs {
		if d.Name == "" {
			return fmt.Errorf("bundle %q has a dialog without a name", b.Name)
		}
		if names[d.Name] {
			return fmt.Errorf("bundle %q declares dialog %q twice", b.Name, d.Name)
		}
		names[d.Name] = true
	}
	for _, set := range b.Intents {
		if !names[set.Dialog] {
			return fmt.Errorf("intent set references unknown dialog %q", set.Dialog)
		}
	}
	return nil
}

// LoadBundle reads a platform-neutral bundle file, JSON or YAML by
// extension, and checks its structural consistency.
func LoadBundle(path string) (Bundle, error) {
	var bundle Bundle
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return bundle, err
		}
		if err := yaml.Unmarshal(data, &bundle); err != nil {
			return bundle, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := schema.LoadJSON(path, &bundle); err != nil {
			return bundle, err
		}
	}
	bundle.applyDefaults()
	if err := bundle.Validate(); err != nil {
		return bundle, err
	}
	return bundle, nil
}

// entityByName indexes the bundle's entity definitions.
func (b *Bundle) entityByName() map[string]schema.Entity {
	out := make(map[string]schema.Entity, len(b.Entities))
	for _, e := range b.Entities {
		out[e.Name] = e
	}
	return out
}
