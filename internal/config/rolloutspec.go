package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/systmms/canaryctl/internal/analysis"
	cerrors "github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/rollout"
)

// RolloutDocument is the operator-facing form of a rollout spec, with
// durations as strings ("30s", "5m"). It converts to rollout.Spec after
// schema validation.
type RolloutDocument struct {
	Service               string          `yaml:"service" json:"service"`
	Steps                 []StepDocument  `yaml:"steps" json:"steps"`
	MetricChecks          []CheckDocument `yaml:"metricChecks" json:"metricChecks"`
	AnalysisFailureBudget int             `yaml:"analysisFailureBudget" json:"analysisFailureBudget"`
}

// StepDocument is one weight schedule entry.
type StepDocument struct {
	Weight int    `yaml:"weight" json:"weight"`
	Pause  string `yaml:"pause" json:"pause"`
}

// CheckDocument is one metric threshold.
type CheckDocument struct {
	Name            string  `yaml:"name" json:"name"`
	Direction       string  `yaml:"direction" json:"direction"`
	Threshold       float64 `yaml:"threshold" json:"threshold"`
	Interval        string  `yaml:"interval" json:"interval"`
	FailuresToAbort int     `yaml:"failures_to_abort" json:"failuresToAbort"`
}

// rolloutSchema is the JSON Schema every rollout document must satisfy
// before semantic validation runs.
const rolloutSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["service", "steps", "metricChecks"],
  "properties": {
    "service": {"type": "string", "minLength": 1},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["weight"],
        "properties": {
          "weight": {"type": "integer", "minimum": 0, "maximum": 100},
          "pause": {"type": "string"}
        }
      }
    },
    "metricChecks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "direction", "threshold"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "direction": {"type": "string", "enum": ["max", "min"]},
          "threshold": {"type": "number"},
          "interval": {"type": "string"},
          "failures_to_abort": {"type": "integer", "minimum": 1}
        }
      }
    },
    "analysisFailureBudget": {"type": "integer", "minimum": 0}
  }
}`

// LoadRolloutDocument reads a rollout document from a YAML file and
// validates it against the schema.
func LoadRolloutDocument(path string) (RolloutDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RolloutDocument{}, cerrors.ConfigError{
			Field:   "path",
			Value:   path,
			Message: "failed to read rollout file: " + err.Error(),
		}
	}
	return ParseRolloutDocument(data)
}

// ParseRolloutDocument parses and schema-validates YAML rollout document
// bytes.
func ParseRolloutDocument(data []byte) (RolloutDocument, error) {
	var doc RolloutDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return RolloutDocument{}, cerrors.SpecError{
			Message:    "invalid YAML syntax in rollout document",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}

	if err := ValidateRolloutSchema(doc); err != nil {
		return RolloutDocument{}, err
	}
	return doc, nil
}

// ValidateRolloutSchema checks the document's shape against the JSON
// Schema. Semantic rules (non-decreasing weights, final weight 100) are
// enforced by rollout.Spec.Validate afterward.
func ValidateRolloutSchema(doc RolloutDocument) error {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return cerrors.SpecError{Message: "failed to marshal rollout document: " + err.Error()}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rolloutSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return cerrors.SpecError{Message: "schema validation error: " + err.Error()}
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return cerrors.SpecError{
			Message:    "schema validation failed: " + strings.Join(messages, "; "),
			Suggestion: "Run 'canaryctl validate' on the file to see the full document format rules",
		}
	}
	return nil
}

// ToSpec converts the document into a rollout spec, parsing durations.
// Empty durations default to 1m pauses and 30s evaluation intervals.
func (d RolloutDocument) ToSpec() (rollout.Spec, error) {
	spec := rollout.Spec{
		Service:       d.Service,
		FailureBudget: d.AnalysisFailureBudget,
	}

	for _, step := range d.Steps {
		pause, err := parseDocDuration("steps.pause", step.Pause, time.Minute)
		if err != nil {
			return rollout.Spec{}, err
		}
		spec.Steps = append(spec.Steps, rollout.Step{
			Weight: step.Weight,
			Pause:  pause,
		})
	}

	for _, check := range d.MetricChecks {
		interval, err := parseDocDuration("metricChecks.interval", check.Interval, 30*time.Second)
		if err != nil {
			return rollout.Spec{}, err
		}
		failures := check.FailuresToAbort
		if failures == 0 {
			failures = 1
		}
		spec.Checks = append(spec.Checks, analysis.MetricCheck{
			Name:            check.Name,
			Direction:       analysis.Direction(check.Direction),
			Threshold:       check.Threshold,
			Interval:        interval,
			FailuresToAbort: failures,
		})
	}

	return spec, nil
}

func parseDocDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, cerrors.SpecError{
			Field:      field,
			Value:      value,
			Message:    "invalid duration",
			Suggestion: "Use Go duration syntax like '30s' or '5m'",
		}
	}
	return d, nil
}
