package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/errors"
)

func TestChatSessionLifecycle(t *testing.T) {
	var paths []string
	var lastAck, lastPC string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/session":
			assert.Equal(t, "50", r.Header.Get("X-CHAT-API-VERSION"))
			json.NewEncoder(w).Encode(sessionResponse{
				SessionID: "s-1", Affinity: "aff", Key: "key", PollTimeoutMS: 100,
			})
		case "/chat-init":
			var init map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&init))
			assert.Equal(t, "s-1", init["session_id"])
			assert.Equal(t, "BotSIM", init["visitor_name"])
		case "/messages":
			assert.Equal(t, "aff", r.Header.Get("X-CHAT-AFFINITY"))
			assert.Equal(t, "key", r.Header.Get("X-CHAT-SESSION-KEY"))
			lastAck = r.URL.Query().Get("ack")
			lastPC = r.URL.Query().Get("pc")
			json.NewEncoder(w).Encode(map[string]any{
				"sequence": 3,
				"messages": []map[string]any{
					{"type": "text", "message": map[string]any{"text": "Hello!"}},
					{"type": "menu", "message": map[string]any{
						"items": []map[string]any{{"text": "Check order"}, {"text": "Cancel order"}},
					}},
				},
			})
		case "/chat-message", "/chat-end":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	client := NewChatSessionClient(ChatSessionConfig{
		Endpoint:    srv.URL,
		APIVersion:  "50",
		PollTimeout: 5 * time.Second,
	}, nil)
	assert.True(t, client.BotSpeaksFirst())

	ctx := context.Background()
	require.NoError(t, client.Open(ctx))

	messages, err := client.Receive(ctx)
	require.NoError(t, err)
	// Plain text and menu items flatten into one message batch.
	assert.Equal(t, []string{"Hello!", "Check order", "Cancel order"}, messages)
	assert.Equal(t, "0", lastAck)
	assert.Equal(t, "0", lastPC)

	// The next poll acknowledges the advanced sequence and count.
	_, err = client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", lastAck)
	assert.Equal(t, "2", lastPC)

	require.NoError(t, client.Send(ctx, "where is my order"))
	require.NoError(t, client.Close(ctx))
	assert.Contains(t, paths, "/chat-end")
}

func TestChatSessionReceiveNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session" {
			json.NewEncoder(w).Encode(sessionResponse{SessionID: "s-1"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewChatSessionClient(ChatSessionConfig{Endpoint: srv.URL, PollTimeout: time.Second}, nil)
	require.NoError(t, client.Open(context.Background()))

	messages, err := client.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatSessionErrorRetryability(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := NewChatSessionClient(ChatSessionConfig{Endpoint: srv.URL, PollTimeout: time.Second}, nil)

	err := client.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))

	// Client-side failures will not heal on retry.
	status = http.StatusForbidden
	err = client.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestChatSessionCloseWithoutOpen(t *testing.T) {
	client := NewChatSessionClient(ChatSessionConfig{Endpoint: "http://unreachable.invalid"}, nil)
	assert.NoError(t, client.Close(context.Background()))
}

func TestDetectIntentBuffersReplies(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var req detectIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.SessionID)
		json.NewEncoder(w).Encode(detectIntentResponse{
			ResponseMessages: []struct {
				Text []string `json:"text"`
			}{{Text: []string{"Sure, I can help you check your order.", "What is the email on the order?"}}},
		})
	}))
	defer srv.Close()

	client := NewDetectIntentClient(DetectIntentConfig{Endpoint: srv.URL, Agent: "support", Token: "tok"}, nil)
	assert.False(t, client.BotSpeaksFirst())

	ctx := context.Background()
	require.NoError(t, client.Open(ctx))
	require.NoError(t, client.Send(ctx, "where is my order"))
	assert.Equal(t, "/agents/support:detectIntent", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)

	messages, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sure, I can help you check your order.", "What is the email on the order?"}, messages)

	// Receive drains the buffer.
	messages, err = client.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDetectIntentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewDetectIntentClient(DetectIntentConfig{Endpoint: srv.URL, Agent: "a"}, nil)
	require.NoError(t, client.Open(context.Background()))
	err := client.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
}
