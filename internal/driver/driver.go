// Package driver runs many simulation sessions against a live bot
// endpoint, in batches, and persists per-session chat logs and typed error
// records.
package driver

import (
	"context"
	"fmt"

	"botsim/internal/errors"
	"botsim/internal/logging"
	"botsim/internal/nlg"
	"botsim/internal/nlu"
	"botsim/internal/schema"
	"botsim/internal/simulator"
	"botsim/internal/store"
	"botsim/internal/transport"
)

// Config tunes driving behavior.
type Config struct {
	// BatchSize is the resource-reset checkpoint; artifacts are flushed at
	// batch boundaries.
	BatchSize int
	// MaxOpenFailures aborts the rest of a batch after this many
	// consecutive session-open failures.
	MaxOpenFailures int
	// RunID keys the summary rows in the store.
	RunID string
	// SummaryEvery logs a running totals block after this many counted
	// episodes.
	SummaryEvery int
}

// DefaultConfig matches the documented driving policy.
func DefaultConfig() Config {
	return Config{BatchSize: 25, MaxOpenFailures: 3, SummaryEvery: 50}
}

// Result is the outcome of driving one (intent, mode) goal set.
type Result struct {
	Logs      schema.SessionLogFile
	Errors    schema.ErrorRecordFile
	Summary   schema.RunSummary
	Discarded int
}

// Driver owns the session loop for one (intent, mode) job. It is not
// shared across goroutines; the orchestrator builds one per job.
type Driver struct {
	cfg      Config
	simCfg   simulator.Config
	matcher  *nlu.Matcher
	renderer *nlg.Renderer
	dialer   transport.Dialer
	store    *store.SummaryStore // optional
	logger   logging.Logger
	retry    errors.RetryConfig
}

// New wires a driver. The store may be nil when no database is configured.
func New(cfg Config, simCfg simulator.Config, matcher *nlu.Matcher, renderer *nlg.Renderer,
	dialer transport.Dialer, summaryStore *store.SummaryStore, logger logging.Logger) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxOpenFailures <= 0 {
		cfg.MaxOpenFailures = 3
	}
	if cfg.SummaryEvery <= 0 {
		cfg.SummaryEvery = 50
	}
	return &Driver{
		cfg:      cfg,
		simCfg:   simCfg,
		matcher:  matcher,
		renderer: renderer,
		dialer:   dialer,
		store:    summaryStore,
		logger:   logging.OrNop(logger),
		retry:    errors.TransportRetryConfig(),
	}
}

// sessionStatus classifies one driven session.
type sessionStatus int

const (
	sessionCounted sessionStatus = iota
	sessionDiscarded
	sessionOpenFailed
)

// SimulateIntent drives every goal of one (intent, mode) pair. Sessions run
// sequentially inside a batch; artifacts are persisted to logPath and
// errPath at each batch boundary so the files grow monotonically. Empty
// paths skip persistence.
func (d *Driver) SimulateIntent(ctx context.Context, intent, mode string, goalSet schema.GoalSet,
	logPath, errPath string) (*Result, error) {
	res := &Result{
		Logs:   schema.SessionLogFile{Episodes: map[int]schema.EpisodeLog{}},
		Errors: schema.ErrorRecordFile{},
	}
	names := goalSet.Ordered()
	d.logger.Info("simulating %d goals for intent %s (%s)", len(names), intent, mode)

	episode := 0
	for start := 0; start < len(names); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(names) {
			end = len(names)
		}
		openFailures := 0

		for _, name := range names[start:end] {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			goal := goalSet.Goals[name]
			status, err := d.runSession(ctx, goal, episode, res)
			if err != nil {
				return res, err
			}
			switch status {
			case sessionCounted:
				episode++
				openFailures = 0
				if res.Summary.TotalEpisodes%d.cfg.SummaryEvery == 0 {
					d.logRunningSummary(intent, mode, res.Summary)
				}
			case sessionDiscarded:
				res.Discarded++
				openFailures = 0
			case sessionOpenFailed:
				res.Discarded++
				openFailures++
				if openFailures >= d.cfg.MaxOpenFailures {
					d.logger.Error("%d consecutive session-open failures, aborting batch for %s (%s)",
						openFailures, intent, mode)
					return res, errors.NewTransportError("open session", 0,
						fmt.Errorf("%d consecutive open failures", openFailures))
				}
			}
		}

		if err := d.flush(ctx, intent, mode, res, logPath, errPath); err != nil {
			return res, err
		}
	}
	d.logRunningSummary(intent, mode, res.Summary)
	return res, nil
}

// runSession drives a single conversation to completion.
func (d *Driver) runSession(ctx context.Context, goal schema.Goal, episode int, res *Result) (sessionStatus, error) {
	sim := simulator.New(d.simCfg, d.matcher, d.renderer, d.logger)
	sim.Reset(goal)
	client := d.dialer.Dial()

	err := errors.RetryWithLog(ctx, d.retry, client.Open, d.logger)
	if err != nil {
		d.logger.Warn("session open failed for goal %s: %v", goal.Name, err)
		return sessionOpenFailed, nil
	}
	defer client.Close(context.WithoutCancel(ctx))

	if !client.BotSpeaksFirst() {
		probe, err := sim.Start()
		if err != nil {
			return sessionDiscarded, err
		}
		if err := d.send(ctx, client, probe); err != nil {
			d.logger.Warn("discarding session: initial send failed: %v", err)
			return sessionDiscarded, nil
		}
	}

	firstRound := true
	for {
		messages, err := errors.RetryWithResult(ctx, d.retry, func(ctx context.Context) ([]string, error) {
			return client.Receive(ctx)
		})
		if err != nil {
			d.logger.Warn("discarding session: receive failed: %v", err)
			return sessionDiscarded, nil
		}
		if firstRound && client.BotSpeaksFirst() && len(messages) == 0 {
			// The platform never produced an initial message; nothing to
			// simulate against.
			d.logger.Warn("discarding session: no initial bot message")
			return sessionDiscarded, nil
		}
		firstRound = false

		step, err := sim.Step(messages)
		if err != nil {
			// Ambiguous act maps are configuration errors and must stop
			// the whole run, not just this session.
			return sessionDiscarded, err
		}
		if step.Discard {
			return sessionDiscarded, nil
		}
		if step.Done {
			break
		}
		if err := d.send(ctx, client, step.UserUtterance); err != nil {
			d.logger.Warn("discarding session: send failed: %v", err)
			return sessionDiscarded, nil
		}
	}

	d.record(goal, sim, episode, res)
	return sessionCounted, nil
}

func (d *Driver) send(ctx context.Context, client transport.BotClient, text string) error {
	return errors.RetryWithLog(ctx, d.retry, func(ctx context.Context) error {
		return client.Send(ctx, text)
	}, d.logger)
}

// record folds a completed session into the in-memory artifacts.
func (d *Driver) record(goal schema.Goal, sim *simulator.Simulator, episode int, res *Result) {
	outcome := sim.Outcome()
	chatLog := make([]string, 0, len(sim.Turns())+1)
	for _, turn := range sim.Turns() {
		chatLog = append(chatLog, schema.FormatChatLine(turn))
	}
	chatLog = append(chatLog, schema.FormatSummaryLine(episode, outcome))

	res.Logs.Episodes[episode] = schema.EpisodeLog{Goal: goal, ChatLog: chatLog}
	if outcome.Kind != schema.OutcomeSuccess {
		res.Errors[fmt.Sprintf("%d", episode)] = schema.ErrorRecord{
			ErrorInfo: schema.EncodeErrorInfo(episode, outcome),
			ErrorType: string(outcome.Kind),
		}
	}
	res.Summary.Add(outcome)
}

// flush persists artifacts and the summary row at a batch boundary.
func (d *Driver) flush(ctx context.Context, intent, mode string, res *Result, logPath, errPath string) error {
	res.Logs.Summary = res.Summary
	if logPath != "" {
		if err := schema.SaveJSON(logPath, res.Logs); err != nil {
			return fmt.Errorf("persist session logs: %w", err)
		}
	}
	if errPath != "" {
		if err := schema.SaveJSON(errPath, res.Errors); err != nil {
			return fmt.Errorf("persist error records: %w", err)
		}
	}
	if d.store != nil {
		if err := d.store.Upsert(ctx, d.cfg.RunID, intent, mode, res.Summary); err != nil {
			d.logger.Warn("summary row upsert failed: %v", err)
		}
	}
	return nil
}

func (d *Driver) logRunningSummary(intent, mode string, s schema.RunSummary) {
	if s.TotalEpisodes == 0 {
		return
	}
	d.logger.Info("[%s/%s] episodes=%d success=%d intent_err=%d ner_err=%d other_err=%d success_rate=%.2f",
		intent, mode, s.TotalEpisodes, s.Success, s.IntentErrors, s.NERErrors, s.OtherErrors, s.SuccessRate)
}
