package simulator

import (
	"sort"
	"strings"

	"botsim/internal/nlg"
	"botsim/internal/nlu"
	"botsim/internal/schema"
)

// policyFrame pairs the policy action with the semantic frame to render.
type policyFrame struct {
	action userAction
	frame  nlg.Frame
	// informs lists slots whose values this frame supplies, recorded as
	// informed at the turn index of the produced user utterance.
	informs map[string]string
}

// policy maps the round's remaining bot acts to user frames. A non-nil
// StepResult means the policy terminated the session instead.
func (s *Simulator) policy(acts []nlu.Match) ([]policyFrame, *StepResult) {
	var frames []policyFrame
	for _, match := range acts {
		frame, res := s.respond(match)
		if res != nil {
			return nil, res
		}
		if frame != nil {
			frames = append(frames, *frame)
		}
	}
	if len(frames) == 0 {
		// Nothing demanded an answer; keep the conversation moving with
		// the next unaddressed goal slot, or close politely.
		frames = append(frames, s.advance())
	}
	return frames, nil
}

// respond picks the user reaction to one bot act.
func (s *Simulator) respond(match nlu.Match) (*policyFrame, *StepResult) {
	if slot, ok := schema.IsNERError(match.Act); ok {
		// Retry prompt for a slot the user has not given yet: answer it
		// like a first request.
		return s.informSlot(slot, "")
	}
	if slot, entity, ok := schema.IsRequest(match.Act); ok {
		if slot == schema.IntentSlot {
			return s.initialProbe(), nil
		}
		return s.informSlot(slot, entity)
	}
	if strings.HasPrefix(match.Act, "confirm") {
		return s.confirmFrame(match.Act), nil
	}
	switch match.Act {
	case schema.ActGreeting:
		return s.initialProbe(), nil
	case schema.ActGoodbye:
		return s.thanksFrame(), nil
	default:
		// inform / acknowledgement acts need no direct answer.
		return nil, nil
	}
}

// initialProbe emits the goal's paraphrase sentence as the first user turn.
func (s *Simulator) initialProbe() *policyFrame {
	probe := s.goal.Probe()
	return &policyFrame{
		action: actionInitial,
		frame: nlg.Frame{
			Action:       "inform",
			InformSlots:  map[string]string{schema.IntentSlot: probe},
			RequestSlots: map[string]string{},
		},
		informs: map[string]string{schema.IntentSlot: probe},
	}
}

// informSlot answers a bot request for slot. Values come from the goal;
// list values are consumed head-first. A slot missing from the goal means
// the bot switched intents; an exhausted list means the conversation is
// stuck.
func (s *Simulator) informSlot(slot, entity string) (*policyFrame, *StepResult) {
	key, ok := s.goalSlotKey(slot, entity)
	if !ok {
		s.pendingSlots[slot] = true
		s.logger.Debug("bot requested %q which is not in goal %s, classifying as intent error", slot, s.goal.Name)
		return nil, s.terminateIntent("out_of_domain")
	}
	values := s.goal.InformSlots[key]
	if len(values) == 0 {
		return nil, s.terminateOther("inform values exhausted for slot " + slot)
	}
	value := values[0]
	s.goal.InformSlots[key] = values[1:]
	return &policyFrame{
		action:  actionInform,
		frame:   nlg.Frame{Action: "inform", InformSlots: map[string]string{slot: value}, RequestSlots: map[string]string{}},
		informs: map[string]string{slot: value},
	}, nil
}

// confirmFrame answers a yes/no confirmation from the goal, defaulting to
// affirm.
func (s *Simulator) confirmFrame(act string) *policyFrame {
	slot := strings.TrimPrefix(strings.TrimPrefix(act, "confirm"), "_")
	answer := "yes"
	if slot != "" {
		if key, ok := s.goalSlotKey(slot, ""); ok {
			answer = s.goal.InformSlots[key].First()
		}
	}
	action, frameAction := actionAffirm, "affirm"
	if strings.EqualFold(answer, "no") {
		action, frameAction = actionDeny, "deny"
	}
	return &policyFrame{
		action: action,
		frame:  nlg.Frame{Action: frameAction, InformSlots: map[string]string{}, RequestSlots: map[string]string{}},
	}
}

func (s *Simulator) thanksFrame() *policyFrame {
	return &policyFrame{
		action: actionThanks,
		frame:  nlg.Frame{Action: "thanks", InformSlots: map[string]string{}, RequestSlots: map[string]string{}},
	}
}

// advance volunteers the next goal slot the user has not informed yet, or
// closes the conversation when everything is addressed.
func (s *Simulator) advance() policyFrame {
	for _, key := range sortedSlotKeys(s.goal.InformSlots) {
		slot, _ := schema.SplitSlotKey(key)
		if slot == schema.IntentSlot {
			continue
		}
		if _, informed := s.historySlots[slot]; informed {
			continue
		}
		values := s.goal.InformSlots[key]
		if len(values) == 0 {
			continue
		}
		value := values[0]
		s.goal.InformSlots[key] = values[1:]
		return policyFrame{
			action:  actionInform,
			frame:   nlg.Frame{Action: "inform", InformSlots: map[string]string{slot: value}, RequestSlots: map[string]string{}},
			informs: map[string]string{slot: value},
		}
	}
	return *s.thanksFrame()
}

// goalSlotKey resolves a requested slot against the goal's inform keys,
// which may carry an "@Entity" suffix.
func (s *Simulator) goalSlotKey(slot, entity string) (string, bool) {
	if entity != "" {
		if _, ok := s.goal.InformSlots[slot+"@"+entity]; ok {
			return slot + "@" + entity, true
		}
	}
	if _, ok := s.goal.InformSlots[slot]; ok {
		return slot, true
	}
	for key := range s.goal.InformSlots {
		if keySlot, _ := schema.SplitSlotKey(key); keySlot == slot {
			return key, true
		}
	}
	return "", false
}

// render turns the frames into this turn's user utterance and its
// slot-annotated twin.
func (s *Simulator) render(frames []policyFrame) (plain, annotated string, err error) {
	var plains, annotateds []string
	for _, pf := range frames {
		p, a, err := s.renderer.Render(pf.frame, schema.SpeakerUser)
		if err != nil {
			return "", "", err
		}
		plains = append(plains, p)
		annotateds = append(annotateds, a)
	}
	plain = strings.Join(plains, " ")
	annotated = strings.Join(annotateds, " ")

	// Bookkeeping: the informed slots belong to the user turn about to be
	// recorded at index s.turn.
	for _, pf := range frames {
		for slot, value := range pf.informs {
			s.historySlots[slot] = value
			s.informedTurn[slot] = s.turn
			delete(s.pendingSlots, slot)
		}
	}
	return plain, annotated, nil
}

// sortedSlotKeys keeps transcript order reproducible.
func sortedSlotKeys(m map[string]schema.SlotValue) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
