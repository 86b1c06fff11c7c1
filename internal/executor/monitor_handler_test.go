package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/execution"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
	"github.com/sentinela-io/sentinela/internal/services"
	"github.com/sentinela-io/sentinela/internal/testutil"
)

type handlerFixture struct {
	handler    *MonitorHandler
	registry   *registry.Registry
	monitor    *monitor.Monitor
	monitors   *testutil.MockMonitorRepository
	issues     *testutil.MockIssueRepository
	alerts     *testutil.MockAlertRepository
	events     *testutil.MockEventRepository
	executions *testutil.MockExecutionRepository
}

func newHandlerFixture(t *testing.T, def *monitordef.Definition) *handlerFixture {
	t.Helper()
	ctx := context.Background()
	log := logger.New(logger.Config{Mode: "json", Level: "error"})
	cfg := &config.Config{MaxIssuesCreation: 100}

	monitorRepo := testutil.NewMockMonitorRepository()
	issueRepo := testutil.NewMockIssueRepository()
	alertRepo := testutil.NewMockAlertRepository()
	eventRepo := testutil.NewMockEventRepository()
	executionRepo := testutil.NewMockExecutionRepository()

	reg := registry.New(monitorRepo, "* * * * *", time.UTC, log)
	if err := reg.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition() error = %v", err)
	}

	m := &monitor.Monitor{Name: def.NormalizedName(), Enabled: true}
	if _, err := monitorRepo.Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	events := services.NewEventService(eventRepo, nil, nil, true, log)
	monitors := services.NewMonitorService(monitorRepo, events, log)
	issues := services.NewIssueService(issueRepo, events, log)
	alerts := services.NewAlertService(alertRepo, issueRepo, events, log)
	executions := services.NewExecutionService(executionRepo)

	return &handlerFixture{
		handler:    NewMonitorHandler(cfg, reg, monitors, issues, alerts, events, executions, log),
		registry:   reg,
		monitor:    m,
		monitors:   monitorRepo,
		issues:     issueRepo,
		alerts:     alertRepo,
		events:     eventRepo,
		executions: executionRepo,
	}
}

func (f *handlerFixture) claim(t *testing.T) {
	t.Helper()
	claimed, err := f.monitors.SetQueued(context.Background(), f.monitor.ID, true, time.Now().UTC())
	if err != nil || !claimed {
		t.Fatalf("SetQueued() = %v, %v", claimed, err)
	}
}

func monitorMessage(t *testing.T, monitorID int64, tasks ...string) *queue.Message {
	t.Helper()
	body, err := json.Marshal(queue.MonitorPayload{MonitorID: monitorID, Tasks: tasks})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return &queue.Message{ID: "msg-1", Kind: queue.KindMonitor, Body: body}
}

func hasEventName(events *testutil.MockEventRepository, name string) bool {
	for _, n := range events.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func searchDefinition(results []monitordef.IssueData) *monitordef.Definition {
	return &monitordef.Definition{
		Name:    "cpu_pressure",
		Monitor: monitordef.MonitorOptions{SearchCron: "* * * * *"},
		Issue:   monitordef.IssueOptions{ModelIDKey: "host", Solvable: true},
		Search: func(context.Context) ([]monitordef.IssueData, error) {
			return results, nil
		},
		IsSolved: func(data monitordef.IssueData) (bool, error) {
			healthy, _ := data["healthy"].(bool)
			return healthy, nil
		},
	}
}

func TestMonitorHandler_SearchFlow(t *testing.T) {
	f := newHandlerFixture(t, searchDefinition([]monitordef.IssueData{
		{"host": "web-1", "healthy": false},
		{"host": "web-1", "healthy": false}, // duplicate in the same batch
		{"healthy": false},                  // missing model id key
		{"host": "web-2", "healthy": true},  // already solved
		{"host": "web-3", "healthy": false},
	}))
	f.claim(t)
	ctx := context.Background()

	if err := f.handler.Handle(ctx, monitorMessage(t, f.monitor.ID, monitor.RunKindSearch)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	active, _ := f.issues.ListActive(ctx, f.monitor.ID)
	if len(active) != 2 {
		t.Fatalf("active issues = %d, want 2", len(active))
	}
	models := map[string]bool{}
	for _, i := range active {
		models[i.ModelID] = true
	}
	if !models["web-1"] || !models["web-3"] {
		t.Errorf("issue model ids = %v, want web-1 and web-3", models)
	}

	stored, _ := f.monitors.GetByID(ctx, f.monitor.ID)
	if stored.Queued || stored.Running {
		t.Error("Handle() left the run flags set")
	}
	if stored.SearchExecutedAt == nil || stored.LastSuccessfulExecution == nil {
		t.Error("Handle() did not stamp the execution timestamps")
	}

	if len(f.executions.Executions) != 1 || f.executions.Executions[0].Status != execution.StatusSuccess {
		t.Errorf("executions = %+v, want one success", f.executions.Executions)
	}
	if !hasEventName(f.events, event.MonitorExecutionSuccess) {
		t.Error("missing monitor_execution_success event")
	}
}

func TestMonitorHandler_SearchLimitTruncation(t *testing.T) {
	var results []monitordef.IssueData
	for i := 0; i < 5; i++ {
		results = append(results, monitordef.IssueData{"host": fmt.Sprintf("web-%d", i), "healthy": false})
	}
	def := searchDefinition(results)
	def.Monitor.MaxIssuesCreation = 2

	f := newHandlerFixture(t, def)
	f.claim(t)
	ctx := context.Background()

	if err := f.handler.Handle(ctx, monitorMessage(t, f.monitor.ID, monitor.RunKindSearch)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	active, _ := f.issues.ListActive(ctx, f.monitor.ID)
	if len(active) != 2 {
		t.Errorf("active issues = %d, want the configured limit of 2", len(active))
	}
}

func TestMonitorHandler_UpdateAndSolveFlow(t *testing.T) {
	def := &monitordef.Definition{
		Name:    "cpu_pressure",
		Monitor: monitordef.MonitorOptions{UpdateCron: "* * * * *"},
		Issue:   monitordef.IssueOptions{ModelIDKey: "host", Solvable: true},
		Update: func(_ context.Context, issuesData []monitordef.IssueData) ([]monitordef.IssueData, error) {
			for _, data := range issuesData {
				if data["host"] == "web-1" {
					data["healthy"] = true
				}
			}
			return issuesData, nil
		},
		IsSolved: func(data monitordef.IssueData) (bool, error) {
			healthy, _ := data["healthy"].(bool)
			return healthy, nil
		},
	}

	f := newHandlerFixture(t, def)
	ctx := context.Background()

	for _, host := range []string{"web-1", "web-2"} {
		f.issues.Create(ctx, &issue.Issue{
			MonitorID: f.monitor.ID,
			ModelID:   host,
			Status:    issue.StatusActive,
			Data:      map[string]interface{}{"host": host, "healthy": false},
		})
	}

	f.claim(t)
	if err := f.handler.Handle(ctx, monitorMessage(t, f.monitor.ID, monitor.RunKindUpdate)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	active, _ := f.issues.ListActive(ctx, f.monitor.ID)
	if len(active) != 1 || active[0].ModelID != "web-2" {
		t.Errorf("active issues = %+v, want only web-2", active)
	}

	if !hasEventName(f.events, event.IssueUpdatedSolved) {
		t.Error("missing issue_updated_solved event")
	}
	if !hasEventName(f.events, event.IssueUpdatedNotSolved) {
		t.Error("missing issue_updated_not_solved event")
	}
	if !hasEventName(f.events, event.IssueSolved) {
		t.Error("missing issue_solved event")
	}
}

func TestMonitorHandler_RecomputesAlerts(t *testing.T) {
	def := searchDefinition([]monitordef.IssueData{
		{"host": "web-1", "healthy": false},
	})
	def.Alert = &monitordef.AlertOptions{
		Rule: &alert.CountRule{PriorityLevels: alert.PriorityLevels{Low: alert.Level(0)}},
	}

	f := newHandlerFixture(t, def)
	f.claim(t)
	ctx := context.Background()

	if err := f.handler.Handle(ctx, monitorMessage(t, f.monitor.ID, monitor.RunKindSearch)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	open, _ := f.alerts.GetOpen(ctx, f.monitor.ID)
	if open == nil {
		t.Fatal("Handle() did not open an alert")
	}
	linked, _ := f.issues.ListActiveByAlert(ctx, open.ID)
	if len(linked) != 1 {
		t.Errorf("linked issues = %d, want 1", len(linked))
	}
}

func TestMonitorHandler_CallbackError(t *testing.T) {
	def := searchDefinition(nil)
	def.Search = func(context.Context) ([]monitordef.IssueData, error) {
		return nil, fmt.Errorf("upstream API exploded")
	}

	f := newHandlerFixture(t, def)
	f.claim(t)
	ctx := context.Background()

	err := f.handler.Handle(ctx, monitorMessage(t, f.monitor.ID, monitor.RunKindSearch))
	if err == nil {
		t.Fatal("Handle() returned nil for a failing callback")
	}

	if len(f.executions.Executions) != 1 {
		t.Fatalf("executions = %d, want 1", len(f.executions.Executions))
	}
	recorded := f.executions.Executions[0]
	if recorded.Status != execution.StatusFailed || recorded.ErrorType != execution.ErrorTypeCallback {
		t.Errorf("execution = %+v, want failed callback_error", recorded)
	}
	if !hasEventName(f.events, event.MonitorExecutionError) {
		t.Error("missing monitor_execution_error event")
	}

	stored, _ := f.monitors.GetByID(ctx, f.monitor.ID)
	if stored.LastSuccessfulExecution != nil {
		t.Error("failed run stamped last_successful_execution")
	}
	if stored.Queued || stored.Running {
		t.Error("failed run left the flags set")
	}
}

func TestMonitorHandler_NotRegistered(t *testing.T) {
	f := newHandlerFixture(t, searchDefinition(nil))
	ctx := context.Background()

	// A stored, claimed monitor whose definition is gone from the catalog
	ghost := &monitor.Monitor{Name: "ghost_monitor", Enabled: true}
	if _, err := f.monitors.Create(ctx, ghost); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if claimed, err := f.monitors.SetQueued(ctx, ghost.ID, true, time.Now().UTC()); err != nil || !claimed {
		t.Fatalf("SetQueued() = %v, %v", claimed, err)
	}

	if err := f.handler.Handle(ctx, monitorMessage(t, ghost.ID, monitor.RunKindSearch)); err != nil {
		t.Fatalf("Handle() error = %v, want nil for an unregistered monitor", err)
	}

	if len(f.executions.Executions) != 1 || f.executions.Executions[0].ErrorType != execution.ErrorTypeNotRegistered {
		t.Errorf("executions = %+v, want one not_registered failure", f.executions.Executions)
	}

	stored, _ := f.monitors.GetByID(ctx, ghost.ID)
	if stored.Queued || stored.Running {
		t.Error("Handle() left the unregistered monitor's run flags set")
	}
}

func TestMonitorHandler_RunNotAvailable(t *testing.T) {
	f := newHandlerFixture(t, searchDefinition([]monitordef.IssueData{
		{"host": "web-1", "healthy": false},
	}))
	ctx := context.Background()

	// Never claimed: begin_run refuses and the message is consumed
	if err := f.handler.Handle(ctx, monitorMessage(t, f.monitor.ID, monitor.RunKindSearch)); err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}

	active, _ := f.issues.ListActive(ctx, f.monitor.ID)
	if len(active) != 0 {
		t.Errorf("active issues = %d, want none without a claim", len(active))
	}
}
