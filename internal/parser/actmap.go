package parser

import (
	"regexp"
	"strings"

	"botsim/internal/schema"
)

var (
	variablePattern      = regexp.MustCompile(`\{[^}]*\}`)
	successInformPattern = regexp.MustCompile(`\{!([^}]+)\}`)
)

// stripVariables removes {var} placeholders from a bot message so the
// template NLU compares only fixed wording. {!var} success references
// become $var$ markers: the NLU ignores them when scoring, while the
// simulator reads them off the matched exemplar to verify echoed values.
func stripVariables(message string) string {
	out := successInformPattern.ReplaceAllString(message, "$$$1$$")
	return strings.TrimSpace(variablePattern.ReplaceAllString(out, ""))
}

// localActs builds the dialog-act map of a single dialog from its raw
// steps, before graph aggregation. Rules, applied left to right:
//
//   - A collect step for slot s registers request_<s>@<entity> with its
//     prompt and NER_error_<s> with its retry messages.
//   - Consecutive plain messages merge into one exemplar. The first run is
//     the intent_success_message when no request act precedes it, later
//     runs are small_talk. The final run doubles as dialog_success_message.
//   - Navigation contributes edges only, never acts.
func localActs(dialog RawDialog) schema.ActMap {
	acts := schema.ActMap{}
	var current []string
	sawRequest := false
	firstRunDone := false
	flush := func(isLast bool) {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		switch {
		case !firstRunDone && !sawRequest:
			acts[schema.ActIntentSuccess] = append(acts[schema.ActIntentSuccess], text)
		default:
			acts[schema.ActSmallTalk] = append(acts[schema.ActSmallTalk], text)
		}
		firstRunDone = true
		if isLast {
			acts[schema.ActDialogSuccess] = append(acts[schema.ActDialogSuccess], text)
		}
		current = nil
	}

	lastPlain := -1
	for i, step := range dialog.Steps {
		if step.Kind == StepMessage {
			lastPlain = i
		}
	}

	for i, step := range dialog.Steps {
		switch step.Kind {
		case StepMessage:
			current = append(current, stripVariables(step.Text))
			if i == lastPlain {
				flush(true)
			}
		case StepCollect:
			flush(false)
			prompt := stripVariables(step.Prompt)
			act := schema.RequestAct(step.Slot, step.Entity)
			acts[act] = append(acts[act], prompt)
			if !firstRunDone {
				// A dialog that opens with a question uses that question
				// as its recognition acknowledgement.
				acts[schema.ActIntentSuccess] = append(acts[schema.ActIntentSuccess], prompt)
				firstRunDone = true
			}
			for _, retry := range step.RetryMessages {
				nerAct := schema.NERErrorAct(step.Slot)
				acts[nerAct] = append(acts[nerAct], stripVariables(retry))
			}
			sawRequest = true
		default:
			flush(false)
		}
	}
	flush(false)
	return acts
}

// successInforms extracts the {!var} slot references embedded in a
// dialog's success messages. The simulator uses them to verify values the
// bot echoes back.
func successInforms(dialog RawDialog) []string {
	seen := map[string]bool{}
	var out []string
	for _, step := range dialog.Steps {
		if step.Kind != StepMessage {
			continue
		}
		for _, m := range successInformPattern.FindAllStringSubmatch(step.Text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}

// copyActMap deep-copies an act map so aggregation never aliases local maps.
func copyActMap(src schema.ActMap) schema.ActMap {
	out := make(schema.ActMap, len(src))
	for act, exemplars := range src {
		out[act] = append([]string(nil), exemplars...)
	}
	return out
}

// mergeActs unions the exemplars of src into dst, skipping duplicates.
func mergeActs(dst, src schema.ActMap) {
	for act, exemplars := range src {
		existing := map[string]bool{}
		for _, e := range dst[act] {
			existing[e] = true
		}
		for _, e := range exemplars {
			if !existing[e] {
				existing[e] = true
				dst[act] = append(dst[act], e)
			}
		}
	}
}
