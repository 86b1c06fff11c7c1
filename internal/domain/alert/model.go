package alert

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Alert represents an aggregation of a monitor's active issues with a
// priority derived from the monitor's rule
type Alert struct {
	ID                  int64      `json:"id"`
	MonitorID           int64      `json:"monitor_id"`
	Status              string     `json:"status"`
	Priority            Priority   `json:"priority"`
	Locked              bool       `json:"locked"`
	Acknowledged        bool       `json:"acknowledged"`
	AcknowledgePriority *Priority  `json:"acknowledge_priority,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	SolvedAt            *time.Time `json:"solved_at,omitempty"`
}

// Alert status
const (
	StatusActive = "active"
	StatusSolved = "solved"
)

// Priority is an alert priority level. Lower number means higher priority;
// zero means no level was triggered
type Priority int

const (
	PriorityNone          Priority = 0
	PriorityCritical      Priority = 1
	PriorityHigh          Priority = 2
	PriorityModerate      Priority = 3
	PriorityLow           Priority = 4
	PriorityInformational Priority = 5
)

// priorities ordered from highest to lowest
var priorities = []Priority{
	PriorityCritical,
	PriorityHigh,
	PriorityModerate,
	PriorityLow,
	PriorityInformational,
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityModerate:
		return "moderate"
	case PriorityLow:
		return "low"
	case PriorityInformational:
		return "informational"
	default:
		return "none"
	}
}

// ParsePriority converts a priority name to its level, returning
// PriorityNone for unknown names
func ParsePriority(name string) Priority {
	switch name {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "moderate":
		return PriorityModerate
	case "low":
		return PriorityLow
	case "informational":
		return PriorityInformational
	default:
		return PriorityNone
	}
}

// UnmarshalYAML accepts priority names in manifests
func (p *Priority) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed := ParsePriority(name)
	if parsed == PriorityNone && name != "" && name != "none" {
		return fmt.Errorf("unknown priority '%s'", name)
	}
	*p = parsed
	return nil
}

// rank maps a priority to a comparable ordering where none sorts below
// informational
func (p Priority) rank() int {
	if p == PriorityNone {
		return int(PriorityInformational) + 1
	}
	return int(p)
}

// HigherThan reports whether p is a higher priority than other, treating
// none as the lowest possible value
func (p Priority) HigherThan(other Priority) bool {
	return p.rank() < other.rank()
}

// Covers reports whether an acknowledgement at priority p still covers an
// alert currently at priority current
func (p Priority) Covers(current Priority) bool {
	return p.rank() <= current.rank()
}

// IsPriorityAcknowledged reports whether the alert's current priority is
// covered by its acknowledgement
func (a *Alert) IsPriorityAcknowledged() bool {
	if !a.Acknowledged || a.AcknowledgePriority == nil {
		return false
	}
	return a.AcknowledgePriority.Covers(a.Priority)
}

// IsOpen reports whether the alert accepts new issue links
func (a *Alert) IsOpen() bool {
	return a.Status == StatusActive && !a.Locked
}
