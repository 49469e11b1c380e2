package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Default filename templates, overridable via generator.file_paths and
// remediator.file_paths. Templates may use the placeholders <intent>,
// <mode>, <para_setting>, <num_utterances>, <num_simulations>.
var defaultFilePaths = map[string]string{
	"dialog_act_map":         "conf/dialog_act_map.json",
	"dialog_act_map_revised": "conf/dialog_act_map.revised.json",
	"ontology":               "conf/ontology.json",
	"ontology_revised":       "conf/ontology.revised.json",
	"template":               "conf/template.json",
	"graph":                  "conf/graph.json",
	"success_informs":        "conf/success_informs.json",
	"entities":               "goals_dir/entities.json",
	"utterances":             "goals_dir/<intent>.json",
	"paraphrases":            "goals_dir/<intent>_<para_setting>.paraphrases.json",
	"goals":                  "goals_dir/<intent>_<para_setting>.<mode>.paraphrases.goal.json",
	"compound_goals":         "goals_dir/<intent>_<para_setting>.<mode>.paraphrases.compound.goal.json",
	"session_logs":           "simulation/<intent>/logs_<mode>_<para_setting>_<num_utterances>_<num_simulations>_sessions.json",
	"session_errors":         "simulation/<intent>/errors_<mode>_<para_setting>_<num_utterances>_<num_simulations>_sessions.json",
	"intent_predictions":     "remediation/<intent>/intent_predictions_<mode>_<para_setting>_<num_utterances>_<num_simulations>.json",
	"ner_errors":             "remediation/<intent>/ner_errors_<mode>_<para_setting>_<num_utterances>_<num_simulations>.json",
	"intent_remediation":     "remediation/<intent>/intent_remediation_<mode>_<para_setting>_<num_utterances>_<num_simulations>.json",
	"cm_report":              "remediation/cm_<mode>_report.json",
	"aggregated_report":      "remediation/aggregated_report.json",
}

// ParaSetting encodes the paraphrase pool selection used in artifact names.
func (r *Run) ParaSetting() string {
	pc := r.Generator.ParaphraserConfig
	return fmt.Sprintf("%d_%d", pc.NumVariantA, pc.NumVariantB)
}

// template resolves a named filename template, preferring the operator's
// overrides over the defaults. Remediator keys win only in the remediator
// bag; generator keys elsewhere.
func (r *Run) template(key string) string {
	if t, ok := r.Remediator.FilePaths[key]; ok {
		return t
	}
	if t, ok := r.Generator.FilePaths[key]; ok {
		return t
	}
	return defaultFilePaths[key]
}

// countToken renders a count limit the way artifact names expect: -1
// becomes "all".
func countToken(n int) string {
	if n < 0 {
		return "all"
	}
	return fmt.Sprintf("%d", n)
}

// ArtifactPath expands a named template against the session directory.
// Unused placeholders may be left empty.
func (r *Run) ArtifactPath(key, intent, mode string) string {
	pc := r.Generator.ParaphraserConfig
	expanded := strings.NewReplacer(
		"<intent>", intent,
		"<mode>", mode,
		"<para_setting>", r.ParaSetting(),
		"<num_utterances>", countToken(pc.NumUtterances),
		"<num_simulations>", countToken(pc.NumSimulations),
	).Replace(r.template(key))
	return filepath.Join(r.SessionDir, expanded)
}

// Shorthands for the paths every command needs.

func (r *Run) DialogActMapPath(revised bool) string {
	if revised {
		return r.ArtifactPath("dialog_act_map_revised", "", "")
	}
	return r.ArtifactPath("dialog_act_map", "", "")
}

func (r *Run) OntologyPath(revised bool) string {
	if revised {
		return r.ArtifactPath("ontology_revised", "", "")
	}
	return r.ArtifactPath("ontology", "", "")
}

func (r *Run) TemplatePath() string       { return r.ArtifactPath("template", "", "") }
func (r *Run) GraphPath() string          { return r.ArtifactPath("graph", "", "") }
func (r *Run) SuccessInformsPath() string { return r.ArtifactPath("success_informs", "", "") }
func (r *Run) EntitiesPath() string       { return r.ArtifactPath("entities", "", "") }
func (r *Run) UtterancesPath(intent string) string {
	return r.ArtifactPath("utterances", intent, "")
}

func (r *Run) ParaphrasesPath(intent string) string {
	return r.ArtifactPath("paraphrases", intent, "")
}

func (r *Run) GoalsPath(intent, mode string) string {
	return r.ArtifactPath("goals", intent, mode)
}

// CompoundGoalsPath names the multi-intent goal artifact for an ordered
// intent pair.
func (r *Run) CompoundGoalsPath(first, second, mode string) string {
	return r.ArtifactPath("compound_goals", first+"_"+second, mode)
}

func (r *Run) SessionLogsPath(intent, mode string) string {
	return r.ArtifactPath("session_logs", intent, mode)
}

func (r *Run) SessionErrorsPath(intent, mode string) string {
	return r.ArtifactPath("session_errors", intent, mode)
}

func (r *Run) IntentPredictionsPath(intent, mode string) string {
	return r.ArtifactPath("intent_predictions", intent, mode)
}

func (r *Run) NERErrorsPath(intent, mode string) string {
	return r.ArtifactPath("ner_errors", intent, mode)
}

func (r *Run) IntentRemediationPath(intent, mode string) string {
	return r.ArtifactPath("intent_remediation", intent, mode)
}

func (r *Run) CMReportPath(mode string) string {
	return r.ArtifactPath("cm_report", "", mode)
}

func (r *Run) AggregatedReportPath() string {
	return r.ArtifactPath("aggregated_report", "", "")
}

// SessionSubdirs lists the directories prepare creates under the session
// root.
func SessionSubdirs() []string {
	return []string{"conf", "goals_dir", "simulation", "remediation"}
}
