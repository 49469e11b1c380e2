package schema

import "strings"

// Dialog acts label the communicative function of a bot utterance. Fixed
// acts use the constants below; slot-bearing acts are composed names such
// as "request_Email@Email" or "NER_error_Email".
const (
	ActIntentSuccess = "intent_success_message"
	ActIntentFailure = "intent_failure_message"
	ActDialogSuccess = "dialog_success_message"
	ActSmallTalk     = "small_talk"
	ActGreeting      = "greeting"
	ActGoodbye       = "goodbye"
	ActRequestIntent = "request_intent"
)

const (
	requestPrefix  = "request_"
	nerErrorPrefix = "NER_error_"
)

// RequestAct composes the act name for a bot request of slot backed by an
// entity type.
func RequestAct(slot, entity string) string {
	if entity == "" {
		return requestPrefix + slot
	}
	return requestPrefix + slot + "@" + entity
}

// NERErrorAct composes the act name for a bot retry prompt on slot.
func NERErrorAct(slot string) string {
	return nerErrorPrefix + slot
}

// IsRequest reports whether act is a slot request and returns the slot name
// and entity type. The entity is empty for the synthetic request_intent act.
func IsRequest(act string) (slot, entity string, ok bool) {
	if !strings.HasPrefix(act, requestPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(act, requestPrefix)
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		return rest[:at], rest[at+1:], true
	}
	return rest, "", true
}

// IsNERError reports whether act is a retry prompt and returns the slot.
func IsNERError(act string) (slot string, ok bool) {
	if !strings.HasPrefix(act, nerErrorPrefix) {
		return "", false
	}
	return strings.TrimPrefix(act, nerErrorPrefix), true
}

// SlotKey is an ontology key "slot@Entity". Split returns its parts.
func SplitSlotKey(key string) (slot, entity string) {
	if at := strings.IndexByte(key, '@'); at >= 0 {
		return key[:at], key[at+1:]
	}
	return key, ""
}
