package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"botsim/internal/errors"
	"botsim/internal/logging"
)

// DetectIntentConfig configures the single-turn RPC platform.
type DetectIntentConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Agent    string `json:"agent" yaml:"agent" mapstructure:"agent"`
	Token    string `json:"token" yaml:"token" mapstructure:"token"`
}

// DetectIntentClient adapts the request/response DetectIntent RPC to the
// session-shaped BotClient contract: each Send buffers the bot's reply for
// the following Receive. Sessions are identified by a UUID; there is no
// explicit open or close on the wire.
type DetectIntentClient struct {
	cfg       DetectIntentConfig
	http      *http.Client
	logger    logging.Logger
	sessionID string
	buffered  []string
}

// DetectIntentDialer creates one DetectIntentClient per session.
type DetectIntentDialer struct {
	Config DetectIntentConfig
	Logger logging.Logger
}

func (d DetectIntentDialer) Dial() BotClient {
	return NewDetectIntentClient(d.Config, d.Logger)
}

// NewDetectIntentClient builds an unopened client.
func NewDetectIntentClient(cfg DetectIntentConfig, logger logging.Logger) *DetectIntentClient {
	return &DetectIntentClient{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logging.OrNop(logger),
	}
}

// BotSpeaksFirst is false: the RPC platform only answers.
func (c *DetectIntentClient) BotSpeaksFirst() bool {
	return false
}

func (c *DetectIntentClient) Open(ctx context.Context) error {
	c.sessionID = uuid.NewString()
	c.buffered = nil
	c.logger.Debug("opened detect-intent session %s", c.sessionID)
	return nil
}

// Receive hands back the messages buffered by the last Send.
func (c *DetectIntentClient) Receive(ctx context.Context) ([]string, error) {
	out := c.buffered
	c.buffered = nil
	return out, nil
}

type detectIntentRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type detectIntentResponse struct {
	ResponseMessages []struct {
		Text []string `json:"text"`
	} `json:"response_messages"`
}

// Send runs one DetectIntent call and buffers the response messages.
func (c *DetectIntentClient) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(detectIntentRequest{SessionID: c.sessionID, Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/agents/%s:detectIntent", c.cfg.Endpoint, c.cfg.Agent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.NewTransportError("detect intent", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewTransportError("detect intent", 0, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransportError("detect intent", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewTransportError("detect intent", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var decoded detectIntentResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return errors.NewTransportError("detect intent", 0, fmt.Errorf("decode response: %w", err))
	}
	for _, m := range decoded.ResponseMessages {
		c.buffered = append(c.buffered, m.Text...)
	}
	return nil
}

func (c *DetectIntentClient) Close(ctx context.Context) error {
	c.sessionID = ""
	c.buffered = nil
	return nil
}
