package monitordef

import (
	"context"
	"fmt"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/pkg/schedule"
)

// IssueData is an opaque issue payload keyed by strings
type IssueData = map[string]interface{}

// SearchFunc finds new issues, returning one data entry per issue
type SearchFunc func(ctx context.Context) ([]IssueData, error)

// UpdateFunc refreshes the data of the provided active issues
type UpdateFunc func(ctx context.Context, issuesData []IssueData) ([]IssueData, error)

// IsSolvedFunc reports whether the issue data represents a solved problem
type IsSolvedFunc func(issueData IssueData) (bool, error)

// ReactionFunc is a user callback bound to an event name
type ReactionFunc func(ctx context.Context, payload *event.Payload) error

// MonitorOptions is the primary configuration of a monitor
type MonitorOptions struct {
	SearchCron        string `yaml:"search_cron"`
	UpdateCron        string `yaml:"update_cron"`
	MaxIssuesCreation int    `yaml:"max_issues_creation"`
	ExecutionTimeout  int    `yaml:"execution_timeout"`
}

// IssueOptions specifies issue management settings
type IssueOptions struct {
	ModelIDKey string `yaml:"model_id_key"`
	Solvable   bool   `yaml:"solvable"`
	Unique     bool   `yaml:"unique"`
}

// AlertOptions configures alert priority calculation
type AlertOptions struct {
	Rule                          alert.Rule
	DismissAcknowledgeOnNewIssues bool
}

// NotificationOptions configures one notification channel for a monitor
type NotificationOptions struct {
	Class             string                 `yaml:"class"`
	MinPriorityToSend alert.Priority         `yaml:"min_priority_to_send"`
	Mention           []string               `yaml:"mention"`
	Params            map[string]interface{} `yaml:"params"`
}

// Definition is the value object describing a loaded monitor: its options,
// rule and callbacks
type Definition struct {
	Name string

	Monitor MonitorOptions
	Issue   IssueOptions
	Alert   *AlertOptions

	Reactions     map[string][]ReactionFunc
	Notifications []NotificationOptions

	Search   SearchFunc
	Update   UpdateFunc
	IsSolved IsSolvedFunc
}

// NormalizedName returns the monitor's normalized name
func (d *Definition) NormalizedName() string {
	return monitor.NormalizeName(d.Name)
}

// Callbacks returns the compiled half of the definition, ready to pair
// with a manifest
func (d *Definition) Callbacks() Callbacks {
	return Callbacks{
		Search:    d.Search,
		Update:    d.Update,
		IsSolved:  d.IsSolved,
		Reactions: d.Reactions,
	}
}

// HasReactions reports whether the definition registers at least one
// reaction for the event name
func (d *Definition) HasReactions(eventName string) bool {
	return len(d.Reactions[eventName]) > 0
}

// IsSolvedCheck runs the is_solved callback, treating non-solvable monitors
// and missing callbacks as never solved
func (d *Definition) IsSolvedCheck(issueData IssueData) (bool, error) {
	if !d.Issue.Solvable || d.IsSolved == nil {
		return false, nil
	}
	return d.IsSolved(issueData)
}

// Validate checks the definition for structural problems. The returned
// error carries every problem found
func (d *Definition) Validate() error {
	var problems []string

	if monitor.NormalizeName(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if d.Monitor.SearchCron == "" && d.Monitor.UpdateCron == "" {
		problems = append(problems, "at least one of search_cron and update_cron is required")
	}
	if d.Monitor.SearchCron != "" && !schedule.IsValid(d.Monitor.SearchCron) {
		problems = append(problems, fmt.Sprintf("invalid search_cron '%s'", d.Monitor.SearchCron))
	}
	if d.Monitor.UpdateCron != "" && !schedule.IsValid(d.Monitor.UpdateCron) {
		problems = append(problems, fmt.Sprintf("invalid update_cron '%s'", d.Monitor.UpdateCron))
	}
	if d.Issue.ModelIDKey == "" {
		problems = append(problems, "issue_options.model_id_key is required")
	}
	if d.Issue.Solvable && d.IsSolved == nil {
		problems = append(problems, "solvable monitors require an is_solved callback")
	}
	if d.Monitor.SearchCron != "" && d.Search == nil {
		problems = append(problems, "search_cron requires a search callback")
	}
	if d.Monitor.UpdateCron != "" && d.Update == nil {
		problems = append(problems, "update_cron requires an update callback")
	}
	if d.Alert != nil && d.Alert.Rule == nil {
		problems = append(problems, "alert_options.rule is required")
	}
	for eventName := range d.Reactions {
		if !event.IsValidName(eventName) {
			problems = append(problems, fmt.Sprintf("unknown reaction event name '%s'", eventName))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError aggregates the problems found while validating a
// definition
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid monitor definition: %v", e.Problems)
}
