package services

import (
	"context"
	"testing"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/testutil"
)

func newIssueServiceForTest() (*IssueService, *testutil.MockIssueRepository, *testutil.MockEventRepository) {
	issues := testutil.NewMockIssueRepository()
	eventRepo := testutil.NewMockEventRepository()
	log := logger.New(logger.Config{Mode: "json", Level: "error"})
	events := NewEventService(eventRepo, nil, nil, true, log)
	return NewIssueService(issues, events, log), issues, eventRepo
}

func TestIssueService_Upsert(t *testing.T) {
	service, _, events := newIssueServiceForTest()
	ctx := context.Background()

	created, err := service.Upsert(ctx, 1, "server-1", map[string]interface{}{"cpu": 93}, false)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if created == nil {
		t.Fatal("Upsert() returned nil for a fresh model id")
	}
	if created.Status != issue.StatusActive {
		t.Errorf("issue status = %s, want active", created.Status)
	}
	if !hasEvent(events, event.IssueCreated) {
		t.Error("missing issue_created event")
	}

	// Active issue with the same model id blocks a second creation
	again, err := service.Upsert(ctx, 1, "server-1", nil, false)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if again != nil {
		t.Error("Upsert() duplicated an active issue")
	}

	// Another monitor is a separate namespace
	other, err := service.Upsert(ctx, 2, "server-1", nil, false)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if other == nil {
		t.Error("Upsert() blocked a different monitor's model id")
	}
}

func TestIssueService_Upsert_Unique(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name       string
		unique     bool
		wantSecond bool
	}{
		{name: "unique blocks recreation after solve", unique: true, wantSecond: false},
		{name: "non unique recreates after solve", unique: false, wantSecond: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, issues, _ := newIssueServiceForTest()

			first, err := service.Upsert(ctx, 1, "deploy-42", nil, tt.unique)
			if err != nil || first == nil {
				t.Fatalf("Upsert() = %v, %v", first, err)
			}
			if err := issues.SetStatus(ctx, first.ID, issue.StatusSolved, now); err != nil {
				t.Fatalf("SetStatus() error = %v", err)
			}

			second, err := service.Upsert(ctx, 1, "deploy-42", nil, tt.unique)
			if err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
			if (second != nil) != tt.wantSecond {
				t.Errorf("Upsert() second = %v, want created %v", second, tt.wantSecond)
			}
		})
	}
}

func TestIssueService_MarkSolvedAndDropped(t *testing.T) {
	service, issues, events := newIssueServiceForTest()
	ctx := context.Background()

	solved, _ := service.Upsert(ctx, 1, "a", nil, false)
	dropped, _ := service.Upsert(ctx, 1, "b", nil, false)

	if err := service.MarkSolved(ctx, solved.ID); err != nil {
		t.Fatalf("MarkSolved() error = %v", err)
	}
	if err := service.MarkDropped(ctx, dropped.ID); err != nil {
		t.Fatalf("MarkDropped() error = %v", err)
	}

	stored, _ := issues.GetByID(ctx, solved.ID)
	if stored.Status != issue.StatusSolved || stored.SolvedAt == nil {
		t.Errorf("MarkSolved() state = %+v", stored)
	}
	stored, _ = issues.GetByID(ctx, dropped.ID)
	if stored.Status != issue.StatusDropped || stored.DroppedAt == nil {
		t.Errorf("MarkDropped() state = %+v", stored)
	}

	if !hasEvent(events, event.IssueSolved) || !hasEvent(events, event.IssueDropped) {
		t.Error("missing issue transition events")
	}

	// Terminal statuses reject further transitions
	if err := service.MarkSolved(ctx, dropped.ID); err == nil {
		t.Error("MarkSolved() accepted a dropped issue")
	}
}
