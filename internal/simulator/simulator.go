// Package simulator implements the agenda-based user simulator: a
// per-session state machine that converses with a bot to fulfil one goal,
// detects intent and entity-extraction errors, and backtracks to the turn
// that caused them.
package simulator

import (
	"fmt"
	"regexp"
	"strings"

	"botsim/internal/errors"
	"botsim/internal/logging"
	"botsim/internal/nlg"
	"botsim/internal/nlu"
	"botsim/internal/schema"
)

// Config holds the per-platform runtime knobs.
type Config struct {
	// MaxRounds bounds the number of bot/user exchanges per session.
	MaxRounds int
	// IntentCheckTurn is the turn index at which the bot's intent
	// classification outcome is observable (2 or 3 depending on whether
	// the platform greets first).
	IntentCheckTurn int
}

// DefaultConfig mirrors a bot-first chat platform.
func DefaultConfig() Config {
	return Config{MaxRounds: 15, IntentCheckTurn: 2}
}

// userAction is the policy-selected action for one user frame.
type userAction string

const (
	actionInitial userAction = "initial"
	actionInform  userAction = "inform"
	actionAffirm  userAction = "affirm"
	actionDeny    userAction = "deny"
	actionThanks  userAction = "thanks"
)

// StepResult is what one simulator step hands back to the driver.
type StepResult struct {
	// UserUtterance is the reply to send to the bot; empty when the
	// session ended this step.
	UserUtterance string
	// Done marks session termination; Outcome() is then valid.
	Done bool
	// Discard marks a session that must not be counted: the NLU produced
	// the empty act on the critical intent-check turn.
	Discard bool
}

// Simulator runs one session. It is strictly single-goroutine; the only
// suspension points are the driver's sends and receives around Step.
type Simulator struct {
	cfg      Config
	matcher  *nlu.Matcher
	renderer *nlg.Renderer
	logger   logging.Logger

	goal          schema.Goal
	turn          int // next turn index in the chat log
	exchanges     int // completed bot/user exchanges
	intentSucceed bool
	done          bool
	outcome       schema.SessionOutcome

	// informedTurn records the turn index at which the user supplied each
	// slot, for NER backtracking.
	informedTurn map[string]int
	historySlots map[string]string
	pendingSlots map[string]bool // requested by the bot, not yet resolved
	turns        []schema.DialogTurn
	lastAct      string
}

// New builds a simulator bound to a reviewed act map and template set.
func New(cfg Config, matcher *nlu.Matcher, renderer *nlg.Renderer, logger logging.Logger) *Simulator {
	return &Simulator{
		cfg:      cfg,
		matcher:  matcher,
		renderer: renderer,
		logger:   logging.OrNop(logger),
	}
}

// Reset prepares the simulator for a new session. The goal is cloned, so
// multi-turn inform lists can be consumed in place.
func (s *Simulator) Reset(goal schema.Goal) {
	s.goal = goal.Clone()
	s.turn = 0
	s.exchanges = 0
	s.intentSucceed = false
	s.done = false
	s.outcome = schema.SessionOutcome{}
	s.informedTurn = map[string]int{}
	s.historySlots = map[string]string{}
	s.pendingSlots = map[string]bool{}
	s.turns = nil
	s.lastAct = ""
}

// Turns returns the chat transcript so far.
func (s *Simulator) Turns() []schema.DialogTurn {
	return s.turns
}

// Outcome returns the session outcome; valid once Step reported Done.
func (s *Simulator) Outcome() schema.SessionOutcome {
	return s.outcome
}

// Start emits the initial intent probe without a preceding bot turn, for
// platforms where the user speaks first. Bot-first platforms skip it; their
// greeting is matched as a request for the intent instead.
func (s *Simulator) Start() (string, error) {
	frame := s.initialProbe()
	utterance, annotated, err := s.render([]policyFrame{*frame})
	if err != nil {
		return "", err
	}
	s.recordUser(utterance, annotated, []policyFrame{*frame})
	return utterance, nil
}

// Step consumes one round of bot messages and produces the user's reply.
// A single bot response may contain several messages; they are matched to
// acts individually, consecutive duplicates collapsed and small talk
// dropped, before the policy runs.
func (s *Simulator) Step(botMessages []string) (StepResult, error) {
	if s.done {
		return StepResult{Done: true}, nil
	}
	s.exchanges++

	acts, res, err := s.matchRound(botMessages)
	if err != nil || res != nil {
		if res == nil {
			res = &StepResult{Done: true}
		}
		return *res, err
	}

	frames, res := s.policy(acts)
	if res != nil {
		return *res, nil
	}

	utterance, annotated, err := s.render(frames)
	if err != nil {
		return StepResult{}, err
	}
	s.recordUser(utterance, annotated, frames)

	if s.exchanges > s.cfg.MaxRounds {
		return *s.terminateOther(fmt.Sprintf("round budget %d exhausted", s.cfg.MaxRounds)), nil
	}
	return StepResult{UserUtterance: utterance}, nil
}

// matchRound maps the bot's messages onto dialog acts and applies the
// termination checks. A non-nil StepResult ends the session.
func (s *Simulator) matchRound(botMessages []string) ([]nlu.Match, *StepResult, error) {
	var acts []nlu.Match

	for _, message := range botMessages {
		match := s.matcher.Match(message, s.goal.Name)
		s.recordBot(message)

		if match.Act == "" {
			if s.turn-1 == s.cfg.IntentCheckTurn {
				s.logger.Warn("empty act on intent-check turn for %q, discarding session", s.goal.Name)
				s.done = true
				return nil, &StepResult{Done: true, Discard: true}, nil
			}
			s.logger.Debug("unmatched bot message ignored: %q", message)
			continue
		}

		// An act map where one message matches two different slot
		// requests equally well cannot be simulated; the operator must
		// disambiguate the question file.
		if requests := distinctRequests(match.Ties); len(requests) > 1 {
			s.done = true
			return nil, nil, errors.NewConfigError(
				"match bot message", "",
				fmt.Errorf("message %q maps to multiple request acts %v, revise the dialog-act map", message, requests))
		}

		if match.Act == schema.ActSmallTalk || match.Act == s.lastAct {
			s.lastAct = match.Act
			continue
		}
		s.lastAct = match.Act

		// Cross-intent confusion: on the check turn the message must
		// resemble the target intent's exemplars more than any other
		// intent's.
		if s.turn-1 == s.cfg.IntentCheckTurn {
			if predicted, score := s.bestOtherIntent(message); predicted != "" && score > match.Score {
				return nil, s.terminateIntent(predicted), nil
			}
		}

		if res := s.checkEchoes(message, match.Exemplar); res != nil {
			return nil, res, nil
		}
		if res := s.applyTermination(match); res != nil {
			return nil, res, nil
		}
		acts = append(acts, match)
	}
	return acts, nil, nil
}

// applyTermination runs the ordered termination checks for one matched act.
func (s *Simulator) applyTermination(match nlu.Match) *StepResult {
	if slot, ok := schema.IsNERError(match.Act); ok {
		if _, informed := s.historySlots[slot]; informed {
			return s.terminateNER(slot, schema.NERMissed)
		}
		return nil
	}

	switch match.Act {
	case schema.ActIntentSuccess:
		if s.turn-1 == s.cfg.IntentCheckTurn {
			s.intentSucceed = true
		}
		return nil
	case schema.ActIntentFailure:
		if s.turn-1 == s.cfg.IntentCheckTurn {
			return s.terminateIntent("out_of_domain")
		}
		// A late fallback means the bot lost values it had collected.
		return s.terminateAllPendingNER()
	case schema.ActDialogSuccess:
		if s.intentSucceed {
			return s.terminateSuccess()
		}
		return s.terminateIntent("out_of_domain")
	default:
		return nil
	}
}

// echoPattern finds the $slot$ echo markers the parser leaves in exemplars
// whose source message repeats a collected value back to the user.
var echoPattern = regexp.MustCompile(`\$([^$]+)\$`)

// checkEchoes verifies the slot values the bot repeats back. The matched
// exemplar marks which slots the message echoes; each one the user already
// informed must appear verbatim, or the bot extracted a wrong value.
func (s *Simulator) checkEchoes(message, exemplar string) *StepResult {
	lower := strings.ToLower(message)
	for _, m := range echoPattern.FindAllStringSubmatch(exemplar, -1) {
		slot := m[1]
		value, informed := s.historySlots[slot]
		if !informed || value == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(value)) {
			s.logger.Debug("bot echoed %q without the informed value %q for slot %s", message, value, slot)
			return s.terminateNER(slot, schema.NERWrong)
		}
	}
	return nil
}

func distinctRequests(ties []string) []string {
	var out []string
	for _, act := range ties {
		if _, _, ok := schema.IsRequest(act); ok {
			out = append(out, act)
		}
	}
	return out
}

// bestOtherIntent re-matches the message against every other intent's
// exemplars and returns the best scoring one.
func (s *Simulator) bestOtherIntent(message string) (string, int) {
	best, bestScore := "", -1
	for _, dialog := range s.matcher.Dialogs() {
		if dialog == s.goal.Name {
			continue
		}
		if score := s.matcher.BestScore(message, dialog); score > bestScore {
			best, bestScore = dialog, score
		}
	}
	return best, bestScore
}

func (s *Simulator) recordBot(message string) {
	s.turns = append(s.turns, schema.DialogTurn{
		Speaker:   schema.SpeakerBot,
		Round:     s.turn,
		Utterance: message,
		Intent:    s.goal.Name,
	})
	s.turn++
}

func (s *Simulator) recordUser(utterance, annotated string, frames []policyFrame) {
	actions := make([]string, 0, len(frames))
	for _, f := range frames {
		actions = append(actions, string(f.action))
	}
	s.turns = append(s.turns, schema.DialogTurn{
		Speaker:    schema.SpeakerUser,
		Round:      s.turn,
		Utterance:  utterance,
		Annotated:  annotated,
		Intent:     s.goal.Name,
		UserAction: strings.Join(actions, "+"),
	})
	s.turn++
}
