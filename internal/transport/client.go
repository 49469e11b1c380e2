// Package transport implements the bot API clients the simulation driver
// drives sessions over: a chat-session style platform with explicit
// open/poll/close, and a single-turn DetectIntent RPC platform.
package transport

import "context"

// BotClient is one live conversation with the bot under test. The driver
// owns the call ordering: Open, then alternating Receive/Send, then Close.
type BotClient interface {
	// Open establishes the session.
	Open(ctx context.Context) error
	// Receive waits for the bot's next batch of messages. An empty slice
	// with nil error means the bot had nothing to say within the poll
	// window.
	Receive(ctx context.Context) ([]string, error)
	// Send delivers one user utterance.
	Send(ctx context.Context, text string) error
	// Close ends the session. Safe to call after a failed Open.
	Close(ctx context.Context) error
	// BotSpeaksFirst reports whether the platform greets before the first
	// user turn.
	BotSpeaksFirst() bool
}

// Dialer creates one client per session.
type Dialer interface {
	Dial() BotClient
}
