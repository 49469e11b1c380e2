package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EpisodeLog is one persisted session inside a session-log artifact.
type EpisodeLog struct {
	Goal    Goal     `json:"goal"`
	ChatLog []string `json:"chat_log"`
}

// RunSummary is the running total appended to a session-log artifact.
type RunSummary struct {
	TotalEpisodes int     `json:"total_episodes"`
	Success       int     `json:"success"`
	IntentErrors  int     `json:"intent_errors"`
	NERErrors     int     `json:"ner_errors"`
	OtherErrors   int     `json:"other_errors"`
	SuccessRate   float64 `json:"success_rate"`
	AverageTurns  float64 `json:"average_turns"`
}

// Add folds one outcome into the totals.
func (s *RunSummary) Add(outcome SessionOutcome) {
	sum := s.AverageTurns * float64(s.TotalEpisodes)
	s.TotalEpisodes++
	switch outcome.Kind {
	case OutcomeSuccess:
		s.Success++
	case OutcomeIntent:
		s.IntentErrors++
	case OutcomeNER:
		s.NERErrors++
	case OutcomeOther:
		s.OtherErrors++
	}
	s.SuccessRate = float64(s.Success) / float64(s.TotalEpisodes)
	s.AverageTurns = (sum + float64(outcome.NumTurns)) / float64(s.TotalEpisodes)
}

// SessionLogFile is the artifact mapping session index to episode log, with
// a reserved "summary" key holding the running totals.
type SessionLogFile struct {
	Episodes map[int]EpisodeLog
	Summary  RunSummary
}

const summaryKey = "summary"

func (f SessionLogFile) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(f.Episodes)+1)
	for idx, episode := range f.Episodes {
		data, err := json.Marshal(episode)
		if err != nil {
			return nil, err
		}
		raw[strconv.Itoa(idx)] = data
	}
	data, err := json.Marshal(f.Summary)
	if err != nil {
		return nil, err
	}
	raw[summaryKey] = data
	return json.Marshal(raw)
}

func (f *SessionLogFile) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Episodes = make(map[int]EpisodeLog, len(raw))
	for key, msg := range raw {
		if key == summaryKey {
			if err := json.Unmarshal(msg, &f.Summary); err != nil {
				return fmt.Errorf("decode summary: %w", err)
			}
			continue
		}
		idx, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("session index %q is not a number", key)
		}
		var episode EpisodeLog
		if err := json.Unmarshal(msg, &episode); err != nil {
			return fmt.Errorf("decode session %d: %w", idx, err)
		}
		f.Episodes[idx] = episode
	}
	return nil
}

// ErrorRecord is the per-session error artifact entry.
type ErrorRecord struct {
	ErrorInfo string `json:"error_info"`
	ErrorType string `json:"error_type"`
}

// ErrorRecordFile maps session index to its error record.
type ErrorRecordFile map[string]ErrorRecord

// EncodeErrorInfo renders the compact error_info string for an outcome.
// Fields are semicolon-separated; NER entries are marked with a leading
// "@"; Other errors carry an empty second field.
func EncodeErrorInfo(episode int, outcome SessionOutcome) string {
	switch outcome.Kind {
	case OutcomeIntent:
		return fmt.Sprintf("%d;%s;%s", episode, outcome.UserUtterance, outcome.PredictedIntent)
	case OutcomeNER:
		parts := []string{strconv.Itoa(episode)}
		for _, ne := range outcome.NERErrors {
			parts = append(parts, fmt.Sprintf("@%s:%s:%s", ne.Slot, ne.Kind, ne.Expected))
		}
		return strings.Join(parts, ";")
	case OutcomeOther:
		return fmt.Sprintf("%d;;%s", episode, outcome.Details)
	default:
		return strconv.Itoa(episode)
	}
}

// DecodeErrorInfo recovers the structured pieces of an error_info string.
func DecodeErrorInfo(info string) (episode int, outcome SessionOutcome, err error) {
	parts := strings.Split(info, ";")
	episode, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, SessionOutcome{}, fmt.Errorf("error_info has bad episode %q", info)
	}
	if len(parts) == 1 {
		return episode, SessionOutcome{Kind: OutcomeSuccess}, nil
	}
	if parts[1] == "" {
		outcome = SessionOutcome{Kind: OutcomeOther}
		if len(parts) > 2 {
			outcome.Details = strings.Join(parts[2:], ";")
		}
		return episode, outcome, nil
	}
	if strings.HasPrefix(parts[1], "@") {
		outcome = SessionOutcome{Kind: OutcomeNER}
		for _, part := range parts[1:] {
			part = strings.TrimPrefix(part, "@")
			pieces := strings.SplitN(part, ":", 3)
			if len(pieces) != 3 {
				return 0, SessionOutcome{}, fmt.Errorf("malformed NER entry %q", part)
			}
			outcome.NERErrors = append(outcome.NERErrors, NERSlotError{
				Slot:     pieces[0],
				Kind:     NERErrorKind(pieces[1]),
				Expected: pieces[2],
			})
		}
		return episode, outcome, nil
	}
	outcome = SessionOutcome{Kind: OutcomeIntent, UserUtterance: parts[1]}
	if len(parts) > 2 {
		outcome.PredictedIntent = parts[2]
	}
	return episode, outcome, nil
}
