package monitordef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// Manifest is the declarative half of a monitor definition, loaded from a
// YAML file placed next to the monitor code. Callbacks and reactions are
// attached afterwards through Apply
type Manifest struct {
	Name          string                `yaml:"name"`
	Monitor       MonitorOptions        `yaml:"monitor_options"`
	Issue         IssueOptions          `yaml:"issue_options"`
	Alert         *AlertManifest        `yaml:"alert_options"`
	Notifications []NotificationOptions `yaml:"notifications"`
}

// AlertManifest is the YAML form of AlertOptions
type AlertManifest struct {
	Rule                          RuleManifest `yaml:"rule"`
	DismissAcknowledgeOnNewIssues bool         `yaml:"dismiss_acknowledge_on_new_issues"`
}

// RuleManifest is the YAML form of an alert rule
type RuleManifest struct {
	Type           string             `yaml:"type"`
	PriorityLevels map[string]float64 `yaml:"priority_levels"`
	ValueKey       string             `yaml:"value_key"`
	Operation      string             `yaml:"operation"`
}

// Rule types accepted in manifests
const (
	RuleTypeCount = "count"
	RuleTypeAge   = "age"
	RuleTypeValue = "value"
)

// ParseManifest decodes a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid monitor manifest: %v", err), nil)
	}
	return &m, nil
}

// LoadManifest reads and decodes a YAML manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("failed to read manifest %s", path), err)
	}
	return ParseManifest(data)
}

// Apply builds a Definition from the manifest and the given callbacks
func (m *Manifest) Apply(callbacks Callbacks) (*Definition, error) {
	def := &Definition{
		Name:          m.Name,
		Monitor:       m.Monitor,
		Issue:         m.Issue,
		Notifications: m.Notifications,
		Reactions:     callbacks.Reactions,
		Search:        callbacks.Search,
		Update:        callbacks.Update,
		IsSolved:      callbacks.IsSolved,
	}

	if m.Alert != nil {
		rule, err := m.Alert.Rule.Build()
		if err != nil {
			return nil, err
		}
		def.Alert = &AlertOptions{
			Rule:                          rule,
			DismissAcknowledgeOnNewIssues: m.Alert.DismissAcknowledgeOnNewIssues,
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Callbacks is the compiled half of a monitor definition
type Callbacks struct {
	Search    SearchFunc
	Update    UpdateFunc
	IsSolved  IsSolvedFunc
	Reactions map[string][]ReactionFunc
}

// Build converts the manifest rule into its runtime form
func (r *RuleManifest) Build() (alert.Rule, error) {
	levels, err := buildPriorityLevels(r.PriorityLevels)
	if err != nil {
		return nil, err
	}

	switch r.Type {
	case RuleTypeCount:
		return &alert.CountRule{PriorityLevels: levels}, nil
	case RuleTypeAge:
		return &alert.AgeRule{PriorityLevels: levels}, nil
	case RuleTypeValue:
		if r.ValueKey == "" {
			return nil, errors.ValidationError("value rule requires value_key", nil)
		}
		if r.Operation != alert.OperationGreaterThan && r.Operation != alert.OperationLesserThan {
			return nil, errors.ValidationError(fmt.Sprintf("unknown value rule operation '%s'", r.Operation), nil)
		}
		return &alert.ValueRule{
			ValueKey:       r.ValueKey,
			Operation:      r.Operation,
			PriorityLevels: levels,
		}, nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown rule type '%s'", r.Type), nil)
	}
}

func buildPriorityLevels(raw map[string]float64) (alert.PriorityLevels, error) {
	var levels alert.PriorityLevels
	for name, value := range raw {
		priority := alert.ParsePriority(name)
		if priority == alert.PriorityNone {
			return levels, errors.ValidationError(fmt.Sprintf("unknown priority level '%s'", name), nil)
		}
		v := value
		switch priority {
		case alert.PriorityCritical:
			levels.Critical = &v
		case alert.PriorityHigh:
			levels.High = &v
		case alert.PriorityModerate:
			levels.Moderate = &v
		case alert.PriorityLow:
			levels.Low = &v
		case alert.PriorityInformational:
			levels.Informational = &v
		}
	}
	return levels, nil
}
