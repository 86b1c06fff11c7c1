package services

import (
	"context"
	"testing"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/testutil"
)

func newAlertServiceForTest() (*AlertService, *testutil.MockAlertRepository, *testutil.MockIssueRepository, *testutil.MockEventRepository) {
	alerts := testutil.NewMockAlertRepository()
	issues := testutil.NewMockIssueRepository()
	eventRepo := testutil.NewMockEventRepository()
	log := logger.New(logger.Config{Mode: "json", Level: "error"})
	events := NewEventService(eventRepo, nil, nil, true, log)
	return NewAlertService(alerts, issues, events, log), alerts, issues, eventRepo
}

func addActiveIssue(t *testing.T, issues *testutil.MockIssueRepository, monitorID int64, modelID string) *issue.Issue {
	t.Helper()
	i := &issue.Issue{
		MonitorID: monitorID,
		ModelID:   modelID,
		Status:    issue.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := issues.Create(context.Background(), i); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return i
}

func hasEvent(events *testutil.MockEventRepository, name string) bool {
	for _, n := range events.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func countRule(levels alert.PriorityLevels) alert.Rule {
	return &alert.CountRule{PriorityLevels: levels}
}

func TestAlertService_Recompute_CreatesAlertWhenRuleTriggers(t *testing.T) {
	service, alerts, issues, events := newAlertServiceForTest()
	ctx := context.Background()

	addActiveIssue(t, issues, 1, "a")
	addActiveIssue(t, issues, 1, "b")

	opts := RecomputeOptions{Rule: countRule(alert.PriorityLevels{Low: alert.Level(0)})}
	if err := service.Recompute(ctx, 1, opts, time.Now().UTC()); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	open, _ := alerts.GetOpen(ctx, 1)
	if open == nil {
		t.Fatal("Recompute() did not create an alert")
	}
	if open.Priority != alert.PriorityLow {
		t.Errorf("alert priority = %v, want low", open.Priority)
	}

	linked, _ := issues.ListActiveByAlert(ctx, open.ID)
	if len(linked) != 2 {
		t.Errorf("linked issues = %d, want 2", len(linked))
	}

	for _, name := range []string{event.AlertCreated, event.IssueLinked, event.AlertIssuesLinked} {
		if !hasEvent(events, name) {
			t.Errorf("missing event %s", name)
		}
	}
}

func TestAlertService_Recompute_NoAlertWhenRuleStaysSilent(t *testing.T) {
	service, alerts, issues, _ := newAlertServiceForTest()
	ctx := context.Background()

	addActiveIssue(t, issues, 1, "a")
	addActiveIssue(t, issues, 1, "b")

	opts := RecomputeOptions{Rule: countRule(alert.PriorityLevels{Moderate: alert.Level(5)})}
	if err := service.Recompute(ctx, 1, opts, time.Now().UTC()); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	if open, _ := alerts.GetOpen(ctx, 1); open != nil {
		t.Error("Recompute() created an alert below every level")
	}
}

func TestAlertService_Recompute_NilRuleIsANoop(t *testing.T) {
	service, alerts, issues, _ := newAlertServiceForTest()
	ctx := context.Background()

	addActiveIssue(t, issues, 1, "a")

	if err := service.Recompute(ctx, 1, RecomputeOptions{}, time.Now().UTC()); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	if open, _ := alerts.GetOpen(ctx, 1); open != nil {
		t.Error("Recompute() created an alert without a rule")
	}
}

func TestAlertService_Recompute_EscalatesPriority(t *testing.T) {
	service, alerts, issues, events := newAlertServiceForTest()
	ctx := context.Background()

	opts := RecomputeOptions{Rule: countRule(alert.PriorityLevels{
		Low:  alert.Level(0),
		High: alert.Level(2),
	})}

	addActiveIssue(t, issues, 1, "a")
	if err := service.Recompute(ctx, 1, opts, time.Now().UTC()); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	open, _ := alerts.GetOpen(ctx, 1)
	if open == nil || open.Priority != alert.PriorityLow {
		t.Fatalf("initial alert priority = %+v, want low", open)
	}

	addActiveIssue(t, issues, 1, "b")
	addActiveIssue(t, issues, 1, "c")
	if err := service.Recompute(ctx, 1, opts, time.Now().UTC()); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	open, _ = alerts.GetOpen(ctx, 1)
	if open.Priority != alert.PriorityHigh {
		t.Errorf("alert priority = %v, want high", open.Priority)
	}
	if !hasEvent(events, event.AlertPriorityIncreased) {
		t.Error("missing alert_priority_increased event")
	}
	if !hasEvent(events, event.AlertUpdated) {
		t.Error("missing alert_updated event")
	}
}

func TestAlertService_Recompute_SolvesAlertWithoutActiveIssues(t *testing.T) {
	service, alerts, issues, events := newAlertServiceForTest()
	ctx := context.Background()
	now := time.Now().UTC()

	opts := RecomputeOptions{Rule: countRule(alert.PriorityLevels{Low: alert.Level(0)})}

	i := addActiveIssue(t, issues, 1, "a")
	if err := service.Recompute(ctx, 1, opts, now); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	open, _ := alerts.GetOpen(ctx, 1)
	if open == nil {
		t.Fatal("expected an open alert")
	}

	if err := issues.SetStatus(ctx, i.ID, issue.StatusSolved, now); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := service.Recompute(ctx, 1, opts, now); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	solved, _ := alerts.GetByID(ctx, open.ID)
	if solved.Status != alert.StatusSolved {
		t.Errorf("alert status = %s, want solved", solved.Status)
	}
	if !hasEvent(events, event.AlertSolved) {
		t.Error("missing alert_solved event")
	}
}

func TestAlertService_Recompute_LockedAlertGetsAFreshOne(t *testing.T) {
	service, alerts, issues, _ := newAlertServiceForTest()
	ctx := context.Background()
	now := time.Now().UTC()

	opts := RecomputeOptions{Rule: countRule(alert.PriorityLevels{Low: alert.Level(0)})}

	addActiveIssue(t, issues, 1, "a")
	if err := service.Recompute(ctx, 1, opts, now); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	first, _ := alerts.GetOpen(ctx, 1)
	if err := service.Lock(ctx, first.ID); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	addActiveIssue(t, issues, 1, "b")
	if err := service.Recompute(ctx, 1, opts, now); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	second, _ := alerts.GetOpen(ctx, 1)
	if second == nil {
		t.Fatal("expected a fresh alert next to the locked one")
	}
	if second.ID == first.ID {
		t.Error("new issue was attached to the locked alert")
	}

	linked, _ := issues.ListActiveByAlert(ctx, first.ID)
	if len(linked) != 1 {
		t.Errorf("locked alert issues = %d, want 1", len(linked))
	}
}

func TestAlertService_Recompute_DismissesAcknowledgeOnEscalation(t *testing.T) {
	service, alerts, issues, events := newAlertServiceForTest()
	ctx := context.Background()
	now := time.Now().UTC()

	opts := RecomputeOptions{Rule: countRule(alert.PriorityLevels{
		Low:      alert.Level(0),
		Critical: alert.Level(2),
	})}

	addActiveIssue(t, issues, 1, "a")
	if err := service.Recompute(ctx, 1, opts, now); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	open, _ := alerts.GetOpen(ctx, 1)
	if err := service.Acknowledge(ctx, open.ID); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	addActiveIssue(t, issues, 1, "b")
	addActiveIssue(t, issues, 1, "c")
	if err := service.Recompute(ctx, 1, opts, now); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	open, _ = alerts.GetByID(ctx, open.ID)
	if open.Acknowledged {
		t.Error("acknowledgement survived an escalation past its level")
	}
	if !hasEvent(events, event.AlertAcknowledgeDismissed) {
		t.Error("missing alert_acknowledge_dismissed event")
	}
}

func TestAlertService_Recompute_DismissAcknowledgeOnNewIssues(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name            string
		dismissOnNew    bool
		wantAcknowledge bool
	}{
		{name: "flag set dismisses", dismissOnNew: true, wantAcknowledge: false},
		{name: "flag unset keeps acknowledgement", dismissOnNew: false, wantAcknowledge: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, alerts, issues, _ := newAlertServiceForTest()
			opts := RecomputeOptions{
				Rule:                          countRule(alert.PriorityLevels{Low: alert.Level(0)}),
				DismissAcknowledgeOnNewIssues: tt.dismissOnNew,
			}

			addActiveIssue(t, issues, 1, "a")
			if err := service.Recompute(ctx, 1, opts, now); err != nil {
				t.Fatalf("Recompute() error = %v", err)
			}
			open, _ := alerts.GetOpen(ctx, 1)
			if err := service.Acknowledge(ctx, open.ID); err != nil {
				t.Fatalf("Acknowledge() error = %v", err)
			}

			// Same priority, just one more linked issue
			addActiveIssue(t, issues, 1, "b")
			if err := service.Recompute(ctx, 1, opts, now); err != nil {
				t.Fatalf("Recompute() error = %v", err)
			}

			open, _ = alerts.GetByID(ctx, open.ID)
			if open.Acknowledged != tt.wantAcknowledge {
				t.Errorf("acknowledged = %v, want %v", open.Acknowledged, tt.wantAcknowledge)
			}
		})
	}
}

func TestAlertService_ManualTransitions(t *testing.T) {
	service, alerts, _, events := newAlertServiceForTest()
	ctx := context.Background()

	a := &alert.Alert{MonitorID: 1, Status: alert.StatusActive, Priority: alert.PriorityModerate}
	id, _ := alerts.Create(ctx, a)

	if err := service.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	stored, _ := alerts.GetByID(ctx, id)
	if !stored.Acknowledged || stored.AcknowledgePriority == nil || *stored.AcknowledgePriority != alert.PriorityModerate {
		t.Errorf("Acknowledge() state = %+v", stored)
	}

	if err := service.Lock(ctx, id); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if stored, _ = alerts.GetByID(ctx, id); !stored.Locked {
		t.Error("Lock() did not set the flag")
	}

	if err := service.Unlock(ctx, id); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if stored, _ = alerts.GetByID(ctx, id); stored.Locked {
		t.Error("Unlock() did not clear the flag")
	}

	if err := service.Solve(ctx, id); err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if stored, _ = alerts.GetByID(ctx, id); stored.Status != alert.StatusSolved {
		t.Errorf("Solve() status = %s", stored.Status)
	}

	for _, name := range []string{event.AlertAcknowledged, event.AlertLocked, event.AlertUnlocked, event.AlertSolved} {
		if !hasEvent(events, name) {
			t.Errorf("missing event %s", name)
		}
	}
}
