package simulator

import (
	"sort"

	"botsim/internal/schema"
)

// Termination and error backtracking. Each helper fills the outcome,
// chooses the turn to blame, marks the session done, and hands the driver
// a terminal StepResult.

func (s *Simulator) finish(outcome schema.SessionOutcome) *StepResult {
	outcome.NumTurns = s.exchanges
	s.outcome = outcome
	s.done = true
	return &StepResult{Done: true}
}

func (s *Simulator) terminateSuccess() *StepResult {
	s.logger.Debug("session for %s succeeded after %d exchanges", s.goal.Name, s.exchanges)
	return s.finish(schema.SessionOutcome{Kind: schema.OutcomeSuccess})
}

// terminateIntent blames the user turn that carried the intent probe, two
// turns before the intent check.
func (s *Simulator) terminateIntent(predicted string) *StepResult {
	return s.finish(schema.SessionOutcome{
		Kind:            schema.OutcomeIntent,
		ErrorTurnIdx:    s.cfg.IntentCheckTurn - 2,
		UserUtterance:   s.goal.Probe(),
		PredictedIntent: predicted,
	})
}

// terminateNER blames the turn at which the erring slot was informed,
// recovered from the informed-turn bookkeeping over the turn stack.
func (s *Simulator) terminateNER(slot string, kind schema.NERErrorKind) *StepResult {
	return s.finish(schema.SessionOutcome{
		Kind: schema.OutcomeNER,
		ErrorTurnIdx: s.informedTurn[slot],
		NERErrors: []schema.NERSlotError{{
			Slot:       slot,
			Kind:       kind,
			Expected:   s.historySlots[slot],
			InformedAt: s.informedTurn[slot],
		}},
	})
}

// terminateAllPendingNER records a missed-extraction error for every slot
// the user has informed. A late fallback message means the bot lost them
// all. With nothing informed yet the failure is an intent error instead.
func (s *Simulator) terminateAllPendingNER() *StepResult {
	slots := make([]string, 0, len(s.historySlots))
	for slot := range s.historySlots {
		if slot == schema.IntentSlot {
			continue
		}
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return s.terminateIntent("out_of_domain")
	}
	sort.Strings(slots)

	outcome := schema.SessionOutcome{Kind: schema.OutcomeNER, ErrorTurnIdx: s.informedTurn[slots[0]]}
	for _, slot := range slots {
		if s.informedTurn[slot] < outcome.ErrorTurnIdx {
			outcome.ErrorTurnIdx = s.informedTurn[slot]
		}
		outcome.NERErrors = append(outcome.NERErrors, schema.NERSlotError{
			Slot:       slot,
			Kind:       schema.NERMissed,
			Expected:   s.historySlots[slot],
			InformedAt: s.informedTurn[slot],
		})
	}
	return s.finish(outcome)
}

// terminateOther blames the last recorded turn, or the round budget when
// it was exhausted.
func (s *Simulator) terminateOther(details string) *StepResult {
	errorTurn := s.turn - 1
	if s.exchanges > s.cfg.MaxRounds {
		errorTurn = s.cfg.MaxRounds
	}
	if errorTurn < 0 {
		errorTurn = 0
	}
	return s.finish(schema.SessionOutcome{
		Kind:         schema.OutcomeOther,
		ErrorTurnIdx: errorTurn,
		Details:      details,
	})
}
