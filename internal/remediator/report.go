package remediator

import (
	"math/rand"
	"time"

	"botsim/internal/cmatrix"
	"botsim/internal/schema"
)

// CMReport is the persisted confusion-matrix analysis for one mode.
type CMReport struct {
	Labels          []string              `json:"labels"`
	Matrix          cmatrix.Matrix        `json:"matrix"`
	Permutation     []int                 `json:"permutation"`
	Reordered       cmatrix.Matrix        `json:"reordered"`
	ReorderedLabels []string              `json:"reordered_labels"`
	Accuracy        float64               `json:"accuracy"`
	Classes         []cmatrix.ClassReport `json:"classes"`
	// Clusters groups mutually confusable intents; empty when the matrix
	// has fewer than 3 labels.
	Clusters [][]string `json:"clusters,omitempty"`
}

// ModeReport aggregates one mode (dev or eval) across intents.
type ModeReport struct {
	Intents map[string]*IntentReport `json:"intents"`
	Overall schema.RunSummary        `json:"overall"`
	CM      *CMReport                `json:"confusion_matrix,omitempty"`
}

// AggregatedReport is the final artifact of a run. It is always produced,
// even when sparse.
type AggregatedReport struct {
	BotName string                 `json:"bot_name"`
	Time    string                 `json:"time"`
	Modes   map[string]*ModeReport `json:"modes"`
}

// AggregateOptions tunes matrix reordering and clustering.
type AggregateOptions struct {
	Annealing cmatrix.AnnealingConfig
	// ClusterFraction is the share of adjacent label pairs to cut.
	ClusterFraction float64
	// Seed drives the annealing rng; a fixed seed makes the report fully
	// deterministic.
	Seed int64
}

// DefaultAggregateOptions uses the documented annealing schedule and cuts
// half of the neighbor pairs.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		Annealing:       cmatrix.DefaultAnnealingConfig(),
		ClusterFraction: 0.5,
		Seed:            1,
	}
}

// Aggregate folds per-intent reports into the final report, building one
// confusion matrix per mode with reordering and clustering applied.
func (r *Remediator) Aggregate(botName string, reports []*IntentReport, opts AggregateOptions) *AggregatedReport {
	out := &AggregatedReport{
		BotName: botName,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Modes:   map[string]*ModeReport{},
	}

	for _, report := range reports {
		mode := out.Modes[report.Mode]
		if mode == nil {
			mode = &ModeReport{Intents: map[string]*IntentReport{}}
			out.Modes[report.Mode] = mode
		}
		mode.Intents[report.Intent] = report
		accumulate(&mode.Overall, report.Summary)
	}

	for _, mode := range out.Modes {
		predictions := map[string]map[string]int{}
		for intent, report := range mode.Intents {
			predictions[intent] = report.Predictions
		}
		mode.CM = r.buildCM(predictions, opts)
	}
	return out
}

// buildCM assembles, reorders, and clusters one confusion matrix.
func (r *Remediator) buildCM(predictions map[string]map[string]int, opts AggregateOptions) *CMReport {
	matrix, labels := cmatrix.Build(predictions)
	if len(labels) == 0 {
		return nil
	}
	report := &CMReport{
		Labels:   labels,
		Matrix:   matrix,
		Accuracy: matrix.Accuracy(),
		Classes:  matrix.Report(labels),
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	result := cmatrix.SimulatedAnnealing(matrix, opts.Annealing, rng)
	report.Permutation = result.Perm
	report.Reordered = result.CM
	report.ReorderedLabels = make([]string, len(labels))
	for i, p := range result.Perm {
		report.ReorderedLabels[i] = labels[p]
	}

	if len(labels) >= 3 {
		cuts := cmatrix.ExtractClusters(result.CM, opts.ClusterFraction)
		report.Clusters = cmatrix.ApplyGrouping(report.ReorderedLabels, cuts)
	} else {
		r.logger.Info("confusion matrix has %d labels, skipping clustering", len(labels))
	}
	return report
}

func accumulate(dst *schema.RunSummary, src schema.RunSummary) {
	turnsSum := dst.AverageTurns*float64(dst.TotalEpisodes) + src.AverageTurns*float64(src.TotalEpisodes)
	dst.TotalEpisodes += src.TotalEpisodes
	dst.Success += src.Success
	dst.IntentErrors += src.IntentErrors
	dst.NERErrors += src.NERErrors
	dst.OtherErrors += src.OtherErrors
	if dst.TotalEpisodes > 0 {
		dst.SuccessRate = float64(dst.Success) / float64(dst.TotalEpisodes)
		dst.AverageTurns = turnsSum / float64(dst.TotalEpisodes)
	}
}
