package alert

import (
	"encoding/json"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/issue"
)

// PriorityLevels defines, for a rule, which value triggers each priority
// level. A nil level never triggers
type PriorityLevels struct {
	Informational *float64 `json:"informational,omitempty" yaml:"informational"`
	Low           *float64 `json:"low,omitempty" yaml:"low"`
	Moderate      *float64 `json:"moderate,omitempty" yaml:"moderate"`
	High          *float64 `json:"high,omitempty" yaml:"high"`
	Critical      *float64 `json:"critical,omitempty" yaml:"critical"`
}

// Level returns the configured trigger value for a priority
func (l PriorityLevels) Level(p Priority) *float64 {
	switch p {
	case PriorityCritical:
		return l.Critical
	case PriorityHigh:
		return l.High
	case PriorityModerate:
		return l.Moderate
	case PriorityLow:
		return l.Low
	case PriorityInformational:
		return l.Informational
	default:
		return nil
	}
}

// Rule calculates an alert priority from the alert's active issues
type Rule interface {
	// Evaluate returns the highest triggered priority, or PriorityNone when
	// no level triggers
	Evaluate(issues []*issue.Issue, now time.Time) Priority
}

// CountRule triggers each level when the number of active issues is
// strictly greater than the level's value
type CountRule struct {
	PriorityLevels PriorityLevels `json:"priority_levels" yaml:"priority_levels"`
}

func (r CountRule) Evaluate(issues []*issue.Issue, _ time.Time) Priority {
	count := float64(len(issues))

	for _, priority := range priorities {
		level := r.PriorityLevels.Level(priority)
		if level == nil {
			continue
		}
		if count > *level {
			return priority
		}
	}
	return PriorityNone
}

// AgeRule triggers each level when the oldest active issue's age in seconds
// is strictly greater than the level's value
type AgeRule struct {
	PriorityLevels PriorityLevels `json:"priority_levels" yaml:"priority_levels"`
}

func (r AgeRule) Evaluate(issues []*issue.Issue, now time.Time) Priority {
	for _, priority := range priorities {
		level := r.PriorityLevels.Level(priority)
		if level == nil {
			continue
		}
		for _, i := range issues {
			if i.Age(now).Seconds() > *level {
				return priority
			}
		}
	}
	return PriorityNone
}

// Value rule comparison operations
const (
	OperationGreaterThan = "greater_than"
	OperationLesserThan  = "lesser_than"
)

// ValueRule triggers each level by comparing a numeric value read from the
// issues' data under ValueKey against the level's value. With greater_than
// the level triggers when the value exceeds it; with lesser_than when the
// value is below it. Equal to the level never triggers
type ValueRule struct {
	ValueKey       string         `json:"value_key" yaml:"value_key"`
	Operation      string         `json:"operation" yaml:"operation"`
	PriorityLevels PriorityLevels `json:"priority_levels" yaml:"priority_levels"`
}

func (r ValueRule) Evaluate(issues []*issue.Issue, _ time.Time) Priority {
	values := make([]float64, 0, len(issues))
	for _, i := range issues {
		if value, ok := numericValue(i.Data[r.ValueKey]); ok {
			values = append(values, value)
		}
	}

	for _, priority := range priorities {
		level := r.PriorityLevels.Level(priority)
		if level == nil {
			continue
		}
		for _, value := range values {
			if r.triggers(value, *level) {
				return priority
			}
		}
	}
	return PriorityNone
}

func (r ValueRule) triggers(value, level float64) bool {
	switch r.Operation {
	case OperationGreaterThan:
		return value > level
	case OperationLesserThan:
		return value < level
	default:
		return false
	}
}

func numericValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Level is a convenience constructor for priority level pointers
func Level(v float64) *float64 {
	return &v
}
