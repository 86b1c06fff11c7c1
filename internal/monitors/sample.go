package monitors

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/monitordef"
)

// SampleDefinitions returns the demonstration monitors loaded when
// load_sample_monitors is set. They produce synthetic issues so a fresh
// deployment has data to look at
func SampleDefinitions(tools monitordef.Tools) []*monitordef.Definition {
	return []*monitordef.Definition{
		sampleRandomFailures(),
		sampleGrowingBacklog(tools),
	}
}

// sampleRandomFailures surfaces random synthetic failures that randomly
// resolve themselves on update runs
func sampleRandomFailures() *monitordef.Definition {
	return &monitordef.Definition{
		Name: "sample_random_failures",
		Monitor: monitordef.MonitorOptions{
			SearchCron: "*/2 * * * *",
			UpdateCron: "* * * * *",
		},
		Issue: monitordef.IssueOptions{
			ModelIDKey: "failure_id",
			Solvable:   true,
		},
		Alert: &monitordef.AlertOptions{
			Rule: &alert.CountRule{
				PriorityLevels: alert.PriorityLevels{
					Low:      alert.Level(0),
					Moderate: alert.Level(3),
					High:     alert.Level(6),
				},
			},
		},
		Search: func(_ context.Context) ([]monitordef.IssueData, error) {
			issues := make([]monitordef.IssueData, 0, 3)
			for i := 0; i < rand.Intn(4); i++ {
				issues = append(issues, monitordef.IssueData{
					"failure_id": fmt.Sprintf("failure_%d", rand.Intn(1000)),
					"healthy":    false,
				})
			}
			return issues, nil
		},
		Update: func(_ context.Context, issuesData []monitordef.IssueData) ([]monitordef.IssueData, error) {
			for _, data := range issuesData {
				// Half of the failures recover on each pass
				data["healthy"] = rand.Intn(2) == 0
			}
			return issuesData, nil
		},
		IsSolved: func(issueData monitordef.IssueData) (bool, error) {
			healthy, _ := issueData["healthy"].(bool)
			return healthy, nil
		},
	}
}

// sampleGrowingBacklog simulates a queue whose size is watched with a
// value rule. The size persists through the variable store so it keeps
// growing across runs until the issue is dropped
func sampleGrowingBacklog(tools monitordef.Tools) *monitordef.Definition {
	return &monitordef.Definition{
		Name: "sample_growing_backlog",
		Monitor: monitordef.MonitorOptions{
			SearchCron: "*/5 * * * *",
		},
		Issue: monitordef.IssueOptions{
			ModelIDKey: "queue_name",
			Unique:     true,
		},
		Alert: &monitordef.AlertOptions{
			Rule: &alert.ValueRule{
				ValueKey:  "backlog_size",
				Operation: alert.OperationGreaterThan,
				PriorityLevels: alert.PriorityLevels{
					Low:      alert.Level(100),
					High:     alert.Level(500),
					Critical: alert.Level(1000),
				},
			},
			DismissAcknowledgeOnNewIssues: true,
		},
		Search: func(ctx context.Context) ([]monitordef.IssueData, error) {
			size := rand.Intn(200)
			if m, err := tools.Monitors.GetByName(ctx, "sample_growing_backlog"); err == nil {
				var last int
				if ok, err := tools.Variables.Get(ctx, m.ID, "backlog_size", &last); err == nil && ok {
					size += last
				}
				if err := tools.Variables.Set(ctx, m.ID, "backlog_size", size); err != nil {
					return nil, err
				}
			}
			return []monitordef.IssueData{
				{
					"queue_name":   "ingest",
					"backlog_size": size,
				},
			}, nil
		},
	}
}
