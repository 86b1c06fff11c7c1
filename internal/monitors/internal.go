package monitors

import (
	"context"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/execution"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
)

// recentExecutions bounds how far back the health monitor looks
const recentExecutions = 5

// InternalDefinitions returns the engine's self-observation monitors. They
// read the engine's own store, so the repositories are captured by the
// callbacks
func InternalDefinitions(cfg *config.Config, monitors monitor.Repository, executions execution.Repository, databases monitordef.DatabaseQuerier) []*monitordef.Definition {
	defs := []*monitordef.Definition{
		executionErrorsMonitor(monitors, executions),
	}
	if databases != nil {
		defs = append(defs, databaseHealthMonitor(databases))
	}

	if cfg.InternalMonitorsNotification.Enabled {
		notification := monitordef.NotificationOptions{
			Class:             cfg.InternalMonitorsNotification.NotificationClass,
			MinPriorityToSend: alert.PriorityLow,
			Params:            cfg.InternalMonitorsNotification.Params,
		}
		for _, def := range defs {
			def.Notifications = append(def.Notifications, notification)
		}
	}
	return defs
}

// executionErrorsMonitor raises an issue for every monitor whose latest
// execution failed and solves it once a run succeeds again
func executionErrorsMonitor(monitors monitor.Repository, executions execution.Repository) *monitordef.Definition {
	latestFailure := func(ctx context.Context, monitorID int64) (*execution.MonitorExecution, error) {
		recent, err := executions.ListByMonitor(ctx, monitorID, recentExecutions)
		if err != nil {
			return nil, err
		}
		if len(recent) == 0 || recent[0].Status == execution.StatusSuccess {
			return nil, nil
		}
		return recent[0], nil
	}

	return &monitordef.Definition{
		Name: "internal_monitor_execution_errors",
		Monitor: monitordef.MonitorOptions{
			SearchCron: "*/5 * * * *",
			UpdateCron: "*/5 * * * *",
		},
		Issue: monitordef.IssueOptions{
			ModelIDKey: "monitor_name",
			Solvable:   true,
		},
		Alert: &monitordef.AlertOptions{
			Rule: &alert.CountRule{
				PriorityLevels: alert.PriorityLevels{
					Moderate: alert.Level(0),
					High:     alert.Level(3),
				},
			},
		},
		Search: func(ctx context.Context) ([]monitordef.IssueData, error) {
			all, err := monitors.List(ctx, true)
			if err != nil {
				return nil, err
			}

			var issues []monitordef.IssueData
			for _, m := range all {
				failed, err := latestFailure(ctx, m.ID)
				if err != nil {
					return nil, err
				}
				if failed == nil {
					continue
				}
				issues = append(issues, monitordef.IssueData{
					"monitor_name": m.Name,
					"monitor_id":   m.ID,
					"error_type":   failed.ErrorType,
					"recovered":    false,
				})
			}
			return issues, nil
		},
		Update: func(ctx context.Context, issuesData []monitordef.IssueData) ([]monitordef.IssueData, error) {
			for _, data := range issuesData {
				name, _ := data["monitor_name"].(string)
				m, err := monitors.GetByName(ctx, name)
				if err != nil {
					continue
				}
				failed, err := latestFailure(ctx, m.ID)
				if err != nil {
					return nil, err
				}
				data["recovered"] = failed == nil
				if failed != nil {
					data["error_type"] = failed.ErrorType
				}
			}
			return issuesData, nil
		},
		IsSolved: func(issueData monitordef.IssueData) (bool, error) {
			recovered, _ := issueData["recovered"].(bool)
			return recovered, nil
		},
	}
}

// databaseHealthMonitor probes every named database pool and raises an
// issue per pool that stops answering
func databaseHealthMonitor(databases monitordef.DatabaseQuerier) *monitordef.Definition {
	probe := func(ctx context.Context, pool string) bool {
		_, err := databases.Query(ctx, pool, "SELECT 1")
		return err == nil
	}

	return &monitordef.Definition{
		Name: "internal_database_health",
		Monitor: monitordef.MonitorOptions{
			SearchCron: "*/5 * * * *",
			UpdateCron: "*/5 * * * *",
		},
		Issue: monitordef.IssueOptions{
			ModelIDKey: "pool",
			Solvable:   true,
		},
		Alert: &monitordef.AlertOptions{
			Rule: &alert.CountRule{
				PriorityLevels: alert.PriorityLevels{
					High:     alert.Level(0),
					Critical: alert.Level(1),
				},
			},
		},
		Search: func(ctx context.Context) ([]monitordef.IssueData, error) {
			var issues []monitordef.IssueData
			for _, pool := range databases.Names() {
				if !probe(ctx, pool) {
					issues = append(issues, monitordef.IssueData{
						"pool":      pool,
						"reachable": false,
					})
				}
			}
			return issues, nil
		},
		Update: func(ctx context.Context, issuesData []monitordef.IssueData) ([]monitordef.IssueData, error) {
			for _, data := range issuesData {
				pool, _ := data["pool"].(string)
				data["reachable"] = probe(ctx, pool)
			}
			return issuesData, nil
		},
		IsSolved: func(issueData monitordef.IssueData) (bool, error) {
			reachable, _ := issueData["reachable"].(bool)
			return reachable, nil
		},
	}
}
