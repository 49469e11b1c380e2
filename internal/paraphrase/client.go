// Package paraphrase talks to the paraphrase collaborator, an opaque
// service that returns ranked candidate paraphrases per seed utterance.
package paraphrase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"botsim/internal/errors"
	"botsim/internal/goals"
	"botsim/internal/logging"
)

// Config points at the collaborator service.
type Config struct {
	Endpoint string
	Token    string
	// NumVariantA and NumVariantB select how many candidates of each
	// decoding variant to request per seed.
	NumVariantA int
	NumVariantB int
}

// Client requests paraphrases in one batch per intent. A client with no
// endpoint degrades to the identity mapping: every seed is its own only
// candidate, so the pipeline stays runnable without the collaborator.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
	retry  errors.RetryConfig
}

// New builds a collaborator client.
func New(cfg Config, logger logging.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 2 * time.Minute},
		logger: logging.OrNop(logger),
		retry:  errors.DefaultRetryConfig(),
	}
}

type request struct {
	Utterances  []string `json:"utterances"`
	NumVariantA int      `json:"num_variant_A"`
	NumVariantB int      `json:"num_variant_B"`
}

type response struct {
	Paraphrases map[string][]string `json:"paraphrases"`
}

// Paraphrase returns the candidate pool per seed. Every seed is prepended
// as its own first candidate, so the original phrasing always probes the
// bot too.
func (c *Client) Paraphrase(ctx context.Context, seeds []string) (goals.Paraphrases, error) {
	out := goals.Paraphrases{}
	if c.cfg.Endpoint == "" {
		c.logger.Warn("no paraphrase endpoint configured, probing with seed utterances only")
		for _, seed := range seeds {
			out[seed] = []string{seed}
		}
		return out, nil
	}

	candidates, err := errors.RetryWithResultAndLog(ctx, c.retry, func(ctx context.Context) (map[string][]string, error) {
		return c.call(ctx, seeds)
	}, c.logger)
	if err != nil {
		return nil, err
	}

	for _, seed := range seeds {
		out[seed] = append([]string{seed}, candidates[seed]...)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, seeds []string) (map[string][]string, error) {
	payload, err := json.Marshal(request{
		Utterances:  seeds,
		NumVariantA: c.cfg.NumVariantA,
		NumVariantB: c.cfg.NumVariantB,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/paraphrase", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewTransportError("paraphrase", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewTransportError("paraphrase", 0, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError("paraphrase", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewTransportError("paraphrase", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.NewTransportError("paraphrase", 0, fmt.Errorf("decode response: %w", err))
	}
	return decoded.Paraphrases, nil
}
