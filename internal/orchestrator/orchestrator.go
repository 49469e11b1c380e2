// Package orchestrator fans simulation jobs out over (intent, mode) pairs
// and runs the post-simulation analysis once every job has settled.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"botsim/internal/config"
	"botsim/internal/driver"
	"botsim/internal/errors"
	"botsim/internal/goals"
	"botsim/internal/logging"
	"botsim/internal/nlg"
	"botsim/internal/nlu"
	"botsim/internal/remediator"
	"botsim/internal/schema"
	"botsim/internal/simulator"
	"botsim/internal/store"
	"botsim/internal/transport"
)

// Orchestrator owns one run's shared collaborators. Drivers are built per
// job; the matcher and renderer are read-only after construction and safe
// to share.
type Orchestrator struct {
	run      *config.Run
	matcher  *nlu.Matcher
	renderer *nlg.Renderer
	dialer   transport.Dialer
	store    *store.SummaryStore // optional
	logger   logging.Logger
	runID    string
}

// New loads the reviewed artifacts and wires the run's collaborators. A
// missing reviewed act map or ontology is a MissingArtifactError; the
// operator has to review the parser output first.
func New(run *config.Run, logger logging.Logger) (*Orchestrator, error) {
	logger = logging.OrNop(logger)

	actMap, err := loadActMap(run)
	if err != nil {
		return nil, err
	}
	templates, err := loadTemplates(run)
	if err != nil {
		return nil, err
	}
	dialer, err := buildDialer(run, logger)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		run:      run,
		matcher:  nlu.NewMatcher(actMap, logger),
		renderer: nlg.NewRenderer(templates),
		dialer:   dialer,
		logger:   logger,
		runID:    uuid.NewString(),
	}
	if run.Database != "" {
		summaryStore, err := store.Open(run.Database)
		if err != nil {
			return nil, err
		}
		o.store = summaryStore
	}
	return o, nil
}

// Close releases the summary store, if any.
func (o *Orchestrator) Close() error {
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// RunID identifies this run's summary rows.
func (o *Orchestrator) RunID() string { return o.runID }

func loadActMap(run *config.Run) (schema.DialogActMap, error) {
	path := run.DialogActMapPath(true)
	if _, err := os.Stat(path); err != nil {
		return nil, &errors.MissingArtifactError{Path: path}
	}
	var actMap schema.DialogActMap
	if err := schema.LoadJSON(path, &actMap); err != nil {
		return nil, errors.NewConfigError("load dialog-act map", path, err)
	}
	return actMap, nil
}

func loadTemplates(run *config.Run) (nlg.TemplateSet, error) {
	path := run.TemplatePath()
	var set nlg.TemplateSet
	if _, err := os.Stat(path); err != nil {
		return set, &errors.MissingArtifactError{Path: path}
	}
	if err := schema.LoadJSON(path, &set); err != nil {
		return set, errors.NewConfigError("load templates", path, err)
	}
	return set, nil
}

func buildDialer(run *config.Run, logger logging.Logger) (transport.Dialer, error) {
	switch run.API.Platform {
	case config.PlatformChatSession:
		return transport.ChatSessionDialer{Config: run.API.ChatSession, Logger: logger}, nil
	case config.PlatformDetectIntent:
		return transport.DetectIntentDialer{Config: run.API.DetectIntent, Logger: logger}, nil
	default:
		return nil, errors.NewConfigError("build transport", "api.platform",
			fmt.Errorf("unknown platform %q", run.API.Platform))
	}
}

// JobError records one failed (intent, mode) job without failing its
// siblings.
type JobError struct {
	Intent string
	Mode   string
	Err    error
}

func (e JobError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Intent, e.Mode, e.Err)
}

// SimulateResult is the outcome of one fan-out.
type SimulateResult struct {
	// Completed maps "intent/mode" to the driver result of jobs that ran.
	Completed map[string]*driver.Result
	// Skipped lists jobs whose chat-log artifact already existed.
	Skipped []string
	// Failures lists jobs that errored; the run continues past them.
	Failures []JobError
}

// Simulate runs every (intent, mode) job with bounded parallelism. Jobs
// whose chat-log artifact already exists are skipped, which makes reruns
// resume where the previous run stopped. Configuration errors abort the
// whole group; transport exhaustion only fails the one job.
func (o *Orchestrator) Simulate(ctx context.Context) (*SimulateResult, error) {
	res := &SimulateResult{Completed: map[string]*driver.Result{}}
	var mu sync.Mutex

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(o.run.Orchestrator.Parallelism)

	for _, intent := range o.run.Intents {
		for _, mode := range goals.Modes() {
			intent, mode := intent, string(mode)
			key := intent + "/" + mode
			logPath := o.run.SessionLogsPath(intent, mode)

			if _, err := os.Stat(logPath); err == nil {
				o.logger.Info("chat log for %s already exists, skipping", key)
				res.Skipped = append(res.Skipped, key)
				continue
			}

			group.Go(func() error {
				result, err := o.runJob(ctx, intent, mode)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if errors.IsConfig(err) {
						return err
					}
					res.Failures = append(res.Failures, JobError{Intent: intent, Mode: mode, Err: err})
					return nil
				}
				res.Completed[key] = result
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// runJob drives one (intent, mode) goal set end to end.
func (o *Orchestrator) runJob(ctx context.Context, intent, mode string) (*driver.Result, error) {
	goalPath := o.run.GoalsPath(intent, mode)
	var goalSet schema.GoalSet
	if _, err := os.Stat(goalPath); err != nil {
		return nil, &errors.MissingArtifactError{Path: goalPath}
	}
	if err := schema.LoadJSON(goalPath, &goalSet); err != nil {
		return nil, errors.NewConfigError("load goals", goalPath, err)
	}

	simCfg := simulator.Config{
		MaxRounds:       o.run.Simulator.RunTime.MaxRoundNum,
		IntentCheckTurn: o.run.Simulator.RunTime.IntentCheckTurnIndex,
	}
	driverCfg := driver.DefaultConfig()
	driverCfg.RunID = o.runID

	d := driver.New(driverCfg, simCfg, o.matcher, o.renderer, o.dialer, o.store, o.logger)
	return d.SimulateIntent(ctx, intent, mode, goalSet,
		o.run.SessionLogsPath(intent, mode), o.run.SessionErrorsPath(intent, mode))
}

// Remediate analyzes every (intent, mode) pair that has persisted chat
// logs and writes the per-intent reports plus the aggregated report. It is
// independent of Simulate so analysis can rerun without re-driving the bot.
func (o *Orchestrator) Remediate(ctx context.Context) (*remediator.AggregatedReport, error) {
	actMap, err := loadActMap(o.run)
	if err != nil {
		return nil, err
	}
	entities, err := o.loadEntities()
	if err != nil {
		return nil, err
	}

	cfg := remediator.DefaultConfig()
	cfg.IntentCheckTurn = o.run.Simulator.RunTime.IntentCheckTurnIndex
	rem := remediator.New(cfg, actMap, entities, o.logger)

	var reports []*remediator.IntentReport
	for _, intent := range o.run.Intents {
		for _, mode := range goals.Modes() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report, err := o.analyzeJob(rem, intent, string(mode))
			if err != nil {
				o.logger.Warn("skipping analysis of %s (%s): %v", intent, mode, err)
				continue
			}
			if report != nil {
				reports = append(reports, report)
			}
		}
	}

	opts := remediator.DefaultAggregateOptions()
	opts.ClusterFraction = o.run.Remediator.ClusterFraction
	opts.Annealing.Steps = o.run.Remediator.AnnealingSteps
	opts.Seed = o.run.Remediator.Seed
	aggregated := rem.Aggregate(o.run.BotName, reports, opts)

	for modeName, modeReport := range aggregated.Modes {
		if modeReport.CM == nil {
			continue
		}
		if err := schema.SaveJSON(o.run.CMReportPath(modeName), modeReport.CM); err != nil {
			return nil, err
		}
	}
	if err := schema.SaveJSON(o.run.AggregatedReportPath(), aggregated); err != nil {
		return nil, err
	}
	return aggregated, nil
}

// analyzeJob loads one job's artifacts and produces its intent report.
// Jobs that were never simulated return (nil, nil).
func (o *Orchestrator) analyzeJob(rem *remediator.Remediator, intent, mode string) (*remediator.IntentReport, error) {
	logPath := o.run.SessionLogsPath(intent, mode)
	if _, err := os.Stat(logPath); err != nil {
		return nil, nil
	}
	var logs schema.SessionLogFile
	if err := schema.LoadJSON(logPath, &logs); err != nil {
		return nil, errors.NewConfigError("load session logs", logPath, err)
	}

	records := schema.ErrorRecordFile{}
	errPath := o.run.SessionErrorsPath(intent, mode)
	if _, err := os.Stat(errPath); err == nil {
		if err := schema.LoadJSON(errPath, &records); err != nil {
			return nil, errors.NewConfigError("load error records", errPath, err)
		}
	}

	paraphrases := goals.Paraphrases{}
	paraPath := o.run.ParaphrasesPath(intent)
	if _, err := os.Stat(paraPath); err == nil {
		if err := schema.LoadJSON(paraPath, &paraphrases); err != nil {
			return nil, errors.NewConfigError("load paraphrases", paraPath, err)
		}
	}

	report := rem.AnalyzeIntent(remediator.IntentInputs{
		Intent:      intent,
		Mode:        mode,
		Logs:        logs,
		Errors:      records,
		Paraphrases: paraphrases,
	})

	if err := schema.SaveJSON(o.run.IntentPredictionsPath(intent, mode), report.Predictions); err != nil {
		return nil, err
	}
	if err := schema.SaveJSON(o.run.NERErrorsPath(intent, mode), report.NERSuggestions); err != nil {
		return nil, err
	}
	if err := schema.SaveJSON(o.run.IntentRemediationPath(intent, mode), report); err != nil {
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) loadEntities() (map[string]schema.Entity, error) {
	path := o.run.EntitiesPath()
	if _, err := os.Stat(path); err != nil {
		// Entity definitions are optional for analysis; hints degrade
		// gracefully without them.
		return nil, nil
	}
	var entities map[string]schema.Entity
	if err := schema.LoadJSON(path, &entities); err != nil {
		return nil, errors.NewConfigError("load entities", path, err)
	}
	return entities, nil
}
