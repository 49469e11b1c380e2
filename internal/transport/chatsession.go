package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"botsim/internal/errors"
	"botsim/internal/logging"
)

// ChatSessionConfig carries the credential bag for the chat-session
// platform.
type ChatSessionConfig struct {
	Endpoint     string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	APIVersion   string `json:"api_version" yaml:"api_version" mapstructure:"api_version"`
	OrgID        string `json:"org_id" yaml:"org_id" mapstructure:"org_id"`
	DeploymentID string `json:"deployment_id" yaml:"deployment_id" mapstructure:"deployment_id"`
	ButtonID     string `json:"button_id" yaml:"button_id" mapstructure:"button_id"`
	VisitorName  string `json:"visitor_name" yaml:"visitor_name" mapstructure:"visitor_name"`
	// PollTimeout bounds one Receive call; the server's advertised poll
	// timeout overrides it when longer.
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout" mapstructure:"poll_timeout"`
}

const (
	headerAPIVersion = "X-CHAT-API-VERSION"
	headerAffinity   = "X-CHAT-AFFINITY"
	headerSessionKey = "X-CHAT-SESSION-KEY"
)

// ChatSessionClient is one session against the chat platform. It tracks
// the (sequence, processed-count) pair monotonically, as the polling
// protocol requires.
type ChatSessionClient struct {
	cfg    ChatSessionConfig
	http   *http.Client
	logger logging.Logger

	sessionID      string
	affinity       string
	key            string
	pollTimeout    time.Duration
	sequence       int
	processedCount int
}

// ChatSessionDialer creates one ChatSessionClient per session.
type ChatSessionDialer struct {
	Config ChatSessionConfig
	Logger logging.Logger
}

func (d ChatSessionDialer) Dial() BotClient {
	return NewChatSessionClient(d.Config, d.Logger)
}

// NewChatSessionClient builds an unopened session client.
func NewChatSessionClient(cfg ChatSessionConfig, logger logging.Logger) *ChatSessionClient {
	if cfg.VisitorName == "" {
		cfg.VisitorName = "BotSIM"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 40 * time.Second
	}
	return &ChatSessionClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.PollTimeout + 10*time.Second},
		logger: logging.OrNop(logger),
	}
}

func (c *ChatSessionClient) BotSpeaksFirst() bool {
	return true
}

type sessionResponse struct {
	SessionID     string `json:"session_id"`
	Affinity      string `json:"affinity"`
	Key           string `json:"key"`
	PollTimeoutMS int    `json:"poll_timeout_ms"`
}

// Open creates the server session and initializes the chat.
func (c *ChatSessionClient) Open(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodPost, "/session", nil, map[string]string{
		headerAPIVersion: c.cfg.APIVersion,
		headerAffinity:   "null",
	})
	if err != nil {
		return err
	}
	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return errors.NewTransportError("open session", 0, fmt.Errorf("decode session response: %w", err))
	}
	c.sessionID = session.SessionID
	c.affinity = session.Affinity
	c.key = session.Key
	c.pollTimeout = c.cfg.PollTimeout
	if advertised := time.Duration(session.PollTimeoutMS) * time.Millisecond; advertised > c.pollTimeout {
		c.pollTimeout = advertised
	}
	c.sequence = 0
	c.processedCount = 0

	init := map[string]any{
		"session_id":    c.sessionID,
		"button_id":     c.cfg.ButtonID,
		"deployment_id": c.cfg.DeploymentID,
		"org_id":        c.cfg.OrgID,
		"visitor_name":  c.cfg.VisitorName,
	}
	if _, err := c.do(ctx, http.MethodPost, "/chat-init", init, c.sessionHeaders()); err != nil {
		return err
	}
	c.logger.Debug("opened chat session %s", c.sessionID)
	return nil
}

type messagesResponse struct {
	Sequence int `json:"sequence"`
	Messages []struct {
		Type    string `json:"type"`
		Message struct {
			Text  string `json:"text"`
			Items []struct {
				Text string `json:"text"`
			} `json:"items"`
		} `json:"message"`
	} `json:"messages"`
}

// Receive polls for the bot's next messages, acknowledging everything read
// so far. A 204 or an empty batch yields an empty slice.
func (c *ChatSessionClient) Receive(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("ack", strconv.Itoa(c.sequence))
	query.Set("pc", strconv.Itoa(c.processedCount))
	body, err := c.do(ctx, http.MethodGet, "/messages?"+query.Encode(), nil, c.sessionHeaders())
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var batch messagesResponse
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, errors.NewTransportError("poll messages", 0, fmt.Errorf("decode messages: %w", err))
	}
	if batch.Sequence > c.sequence {
		c.sequence = batch.Sequence
	}

	var texts []string
	for _, m := range batch.Messages {
		switch {
		case m.Message.Text != "":
			texts = append(texts, m.Message.Text)
		case len(m.Message.Items) > 0:
			for _, item := range m.Message.Items {
				if item.Text != "" {
					texts = append(texts, item.Text)
				}
			}
		}
	}
	c.processedCount += len(batch.Messages)
	return texts, nil
}

// Send delivers one user utterance.
func (c *ChatSessionClient) Send(ctx context.Context, text string) error {
	_, err := c.do(ctx, http.MethodPost, "/chat-message", map[string]string{"text": text}, c.sessionHeaders())
	return err
}

// Close ends the chat from the client side.
func (c *ChatSessionClient) Close(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/chat-end", map[string]string{"reason": "client"}, c.sessionHeaders())
	c.sessionID = ""
	return err
}

func (c *ChatSessionClient) sessionHeaders() map[string]string {
	return map[string]string{
		headerAPIVersion: c.cfg.APIVersion,
		headerAffinity:   c.affinity,
		headerSessionKey: c.key,
	}
}

// do performs one HTTP call and returns the raw body. Non-2xx statuses and
// network failures become retryable transport errors.
func (c *ChatSessionClient) do(ctx context.Context, method, path string, payload any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reqBody)
	if err != nil {
		return nil, errors.NewTransportError(path, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(path, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError(path, resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := errors.NewTransportError(path, resp.StatusCode, fmt.Errorf("unexpected status"))
		// Client-side errors will not heal on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			te.Retryable = false
		}
		return nil, te
	}
	return body, nil
}
