package monitordef

import (
	"context"
	"testing"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
)

const sampleManifest = `
name: Orders Backlog
monitor_options:
  search_cron: "*/5 * * * *"
  max_issues_creation: 50
issue_options:
  model_id_key: queue_name
  unique: true
alert_options:
  rule:
    type: value
    value_key: backlog_size
    operation: greater_than
    priority_levels:
      low: 100
      high: 500
      critical: 1000
  dismiss_acknowledge_on_new_issues: true
notifications:
  - class: slack
    min_priority_to_send: moderate
`

func testCallbacks() Callbacks {
	return Callbacks{
		Search: func(context.Context) ([]IssueData, error) { return nil, nil },
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	if m.Name != "Orders Backlog" {
		t.Errorf("name = %s", m.Name)
	}
	if m.Monitor.SearchCron != "*/5 * * * *" || m.Monitor.MaxIssuesCreation != 50 {
		t.Errorf("monitor options = %+v", m.Monitor)
	}
	if m.Issue.ModelIDKey != "queue_name" || !m.Issue.Unique {
		t.Errorf("issue options = %+v", m.Issue)
	}
	if m.Alert == nil || !m.Alert.DismissAcknowledgeOnNewIssues {
		t.Fatalf("alert options = %+v", m.Alert)
	}
	if len(m.Notifications) != 1 || m.Notifications[0].MinPriorityToSend != alert.PriorityModerate {
		t.Errorf("notifications = %+v", m.Notifications)
	}
}

func TestParseManifest_UnknownPriorityName(t *testing.T) {
	_, err := ParseManifest([]byte(`
name: broken
notifications:
  - class: slack
    min_priority_to_send: urgent
`))
	if err == nil {
		t.Error("ParseManifest() accepted an unknown priority name")
	}
}

func TestManifest_Apply(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	def, err := m.Apply(testCallbacks())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if def.NormalizedName() != "orders_backlog" {
		t.Errorf("NormalizedName() = %s", def.NormalizedName())
	}
	if def.Alert == nil || def.Alert.Rule == nil {
		t.Fatal("Apply() dropped the alert rule")
	}

	// The built rule behaves per the manifest levels
	issues := []*issue.Issue{{
		ID:     1,
		Status: issue.StatusActive,
		Data:   map[string]interface{}{"backlog_size": 600},
	}}
	if got := def.Alert.Rule.Evaluate(issues, time.Now()); got != alert.PriorityHigh {
		t.Errorf("Evaluate() = %v, want high", got)
	}
}

func TestManifest_Apply_MissingCallbacks(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	if _, err := m.Apply(Callbacks{}); err == nil {
		t.Error("Apply() accepted a search_cron without a search callback")
	}
}

func TestRuleManifest_Build(t *testing.T) {
	tests := []struct {
		name     string
		manifest RuleManifest
		wantErr  bool
	}{
		{
			name:     "count rule",
			manifest: RuleManifest{Type: RuleTypeCount, PriorityLevels: map[string]float64{"low": 0}},
		},
		{
			name:     "age rule",
			manifest: RuleManifest{Type: RuleTypeAge, PriorityLevels: map[string]float64{"high": 300}},
		},
		{
			name: "value rule",
			manifest: RuleManifest{
				Type:           RuleTypeValue,
				ValueKey:       "size",
				Operation:      alert.OperationGreaterThan,
				PriorityLevels: map[string]float64{"low": 10},
			},
		},
		{
			name:     "unknown type",
			manifest: RuleManifest{Type: "quantile"},
			wantErr:  true,
		},
		{
			name:     "value rule without key",
			manifest: RuleManifest{Type: RuleTypeValue, Operation: alert.OperationGreaterThan},
			wantErr:  true,
		},
		{
			name:     "value rule with bad operation",
			manifest: RuleManifest{Type: RuleTypeValue, ValueKey: "size", Operation: "equals"},
			wantErr:  true,
		},
		{
			name:     "unknown priority level",
			manifest: RuleManifest{Type: RuleTypeCount, PriorityLevels: map[string]float64{"severe": 1}},
			wantErr:  true,
		},
		{
			name:     "none is not a level",
			manifest: RuleManifest{Type: RuleTypeCount, PriorityLevels: map[string]float64{"none": 0}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := tt.manifest.Build()
			if (err != nil) != tt.wantErr {
				t.Errorf("Build() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && rule == nil {
				t.Error("Build() returned nil rule")
			}
		})
	}
}

func TestDefinition_Validate(t *testing.T) {
	valid := func() *Definition {
		return &Definition{
			Name:    "orders_backlog",
			Monitor: MonitorOptions{SearchCron: "*/5 * * * *"},
			Issue:   IssueOptions{ModelIDKey: "queue_name"},
			Search:  func(context.Context) ([]IssueData, error) { return nil, nil },
		}
	}

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{name: "empty name", mutate: func(d *Definition) { d.Name = "  " }},
		{name: "no crons", mutate: func(d *Definition) { d.Monitor.SearchCron = "" }},
		{name: "bad cron", mutate: func(d *Definition) { d.Monitor.SearchCron = "not a cron" }},
		{name: "missing model id key", mutate: func(d *Definition) { d.Issue.ModelIDKey = "" }},
		{name: "solvable without is_solved", mutate: func(d *Definition) { d.Issue.Solvable = true }},
		{name: "search cron without callback", mutate: func(d *Definition) { d.Search = nil }},
		{name: "alert without rule", mutate: func(d *Definition) { d.Alert = &AlertOptions{} }},
		{name: "unknown reaction event", mutate: func(d *Definition) {
			d.Reactions = map[string][]ReactionFunc{"alert_exploded": {}}
		}},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() error = %v on a valid definition", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			if err := d.Validate(); err == nil {
				t.Error("Validate() accepted an invalid definition")
			}
		})
	}
}
