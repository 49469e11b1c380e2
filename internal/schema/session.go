package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Speaker identifies a side of the conversation.
type Speaker string

const (
	SpeakerUser Speaker = "usr"
	SpeakerBot  Speaker = "bot"
)

// DialogTurn is one recorded utterance inside a session.
type DialogTurn struct {
	Speaker   Speaker `json:"speaker"`
	Round     int     `json:"round"`
	Utterance string  `json:"utterance"`
	// Annotated is the slot-annotated twin of a user utterance, with
	// @slot:"value" markers used for error backtracking.
	Annotated string `json:"annotated,omitempty"`
	// Intent is the goal intent active when the turn was produced.
	Intent string `json:"intent,omitempty"`
	// UserAction is the policy action that produced a user turn.
	UserAction string `json:"user_action,omitempty"`
}

// OutcomeKind classifies how a session ended.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "Success"
	OutcomeIntent  OutcomeKind = "Intent"
	OutcomeNER     OutcomeKind = "NER"
	OutcomeOther   OutcomeKind = "Other"
)

// NERErrorKind distinguishes a slot the bot never extracted from one it
// extracted wrongly.
type NERErrorKind string

const (
	NERMissed NERErrorKind = "missed"
	NERWrong  NERErrorKind = "wrong"
)

// NERSlotError describes one slot-level extraction failure.
type NERSlotError struct {
	Slot     string       `json:"slot"`
	Kind     NERErrorKind `json:"kind"`
	Expected string       `json:"expected"`
	// InformedAt is the round at which the user supplied the value.
	InformedAt int `json:"informed_at"`
}

// SessionOutcome is the typed result of one session.
type SessionOutcome struct {
	Kind         OutcomeKind    `json:"kind"`
	NumTurns     int            `json:"num_turns"`
	ErrorTurnIdx int            `json:"error_turn_idx,omitempty"`
	// UserUtterance is the probe sentence blamed for an intent error.
	UserUtterance   string         `json:"user_utterance,omitempty"`
	PredictedIntent string         `json:"predicted_intent,omitempty"`
	NERErrors       []NERSlotError `json:"ner_errors,omitempty"`
	Details         string         `json:"details,omitempty"`
}

// Session aggregates one completed episode.
type Session struct {
	Goal    Goal           `json:"goal"`
	Turns   []DialogTurn   `json:"turns"`
	Outcome SessionOutcome `json:"outcome"`
}

// FormatChatLine renders a turn for the persisted chat log.
func FormatChatLine(turn DialogTurn) string {
	return fmt.Sprintf("%d %s: %s", turn.Round, turn.Speaker, turn.Utterance)
}

// ParseChatLine is the inverse of FormatChatLine.
func ParseChatLine(line string) (DialogTurn, error) {
	space := strings.IndexByte(line, ' ')
	if space < 0 {
		return DialogTurn{}, fmt.Errorf("chat line has no round prefix: %q", line)
	}
	round, err := strconv.Atoi(line[:space])
	if err != nil {
		return DialogTurn{}, fmt.Errorf("chat line has bad round %q", line[:space])
	}
	rest := line[space+1:]
	colon := strings.Index(rest, ": ")
	if colon < 0 {
		return DialogTurn{}, fmt.Errorf("chat line has no speaker: %q", line)
	}
	return DialogTurn{
		Round:     round,
		Speaker:   Speaker(rest[:colon]),
		Utterance: rest[colon+2:],
	}, nil
}

// FormatSummaryLine renders the terminal line of a persisted chat log.
//
//	========== Episode 3 SUCCESS Num_of_turns: 5 ==========
//	========== Episode 7 FAILURE due to IntentError>>1 Num_of_turns: 6 ==========
func FormatSummaryLine(episode int, outcome SessionOutcome) string {
	status := "SUCCESS"
	if outcome.Kind != OutcomeSuccess {
		status = fmt.Sprintf("FAILURE due to %sError>>%d", outcome.Kind, outcome.ErrorTurnIdx)
	}
	return fmt.Sprintf("========== Episode %d %s Num_of_turns: %d ==========", episode, status, outcome.NumTurns)
}

// ParseSummaryLine recovers (episode, outcome) from a summary line.
func ParseSummaryLine(line string) (int, SessionOutcome, error) {
	trimmed := strings.Trim(line, "= ")
	fields := strings.Fields(trimmed)
	if len(fields) < 4 || fields[0] != "Episode" {
		return 0, SessionOutcome{}, fmt.Errorf("not a summary line: %q", line)
	}
	episode, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, SessionOutcome{}, fmt.Errorf("bad episode index in %q", line)
	}
	turnsIdx := -1
	for i, f := range fields {
		if f == "Num_of_turns:" {
			turnsIdx = i
		}
	}
	if turnsIdx < 0 || turnsIdx+1 >= len(fields) {
		return 0, SessionOutcome{}, fmt.Errorf("no turn count in %q", line)
	}
	numTurns, err := strconv.Atoi(fields[turnsIdx+1])
	if err != nil {
		return 0, SessionOutcome{}, fmt.Errorf("bad turn count in %q", line)
	}
	outcome := SessionOutcome{NumTurns: numTurns}
	switch fields[2] {
	case "SUCCESS":
		outcome.Kind = OutcomeSuccess
		return episode, outcome, nil
	case "FAILURE":
		// fields: FAILURE due to <Kind>Error>><idx>
		if turnsIdx < 5 {
			return 0, SessionOutcome{}, fmt.Errorf("malformed failure summary: %q", line)
		}
		cause := fields[4]
		sep := strings.Index(cause, "Error>>")
		if sep < 0 {
			return 0, SessionOutcome{}, fmt.Errorf("malformed failure cause %q", cause)
		}
		outcome.Kind = OutcomeKind(cause[:sep])
		idx, err := strconv.Atoi(cause[sep+len("Error>>"):])
		if err != nil {
			return 0, SessionOutcome{}, fmt.Errorf("bad error turn index in %q", cause)
		}
		outcome.ErrorTurnIdx = idx
		switch outcome.Kind {
		case OutcomeIntent, OutcomeNER, OutcomeOther:
		default:
			return 0, SessionOutcome{}, fmt.Errorf("unknown outcome kind %q", cause[:sep])
		}
		return episode, outcome, nil
	default:
		return 0, SessionOutcome{}, fmt.Errorf("unknown status %q in summary line", fields[2])
	}
}

// IsSummaryLine reports whether a chat-log line is the terminal summary.
func IsSummaryLine(line string) bool {
	return strings.HasPrefix(line, "========== Episode ")
}

func sortByEpisodeIndex(names []string) {
	index := func(name string) int {
		underscore := strings.LastIndexByte(name, '_')
		if underscore < 0 {
			return 0
		}
		n, err := strconv.Atoi(name[underscore+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.Slice(names, func(i, j int) bool {
		ni, nj := index(names[i]), index(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}
