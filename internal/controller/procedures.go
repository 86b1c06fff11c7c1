package controller

import (
	"context"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/services"
)

// Built-in janitorial procedure names
const (
	ProcedureMonitorsStuck           = "monitors_stuck"
	ProcedureNotificationsAlertSolve = "notifications_alert_solved"
)

// defaultSolvedAlertAge is how long an alert stays solved before its
// notifications are closed
const defaultSolvedAlertAge = 5 * time.Minute

// Procedure is one janitorial routine driven by its own cron
type Procedure interface {
	Run(ctx context.Context, params map[string]interface{}) error
}

// monitorsStuckProcedure resets monitors whose executor went silent
type monitorsStuckProcedure struct {
	monitors *services.MonitorService
	cfg      *config.Config
}

func newMonitorsStuckProcedure(monitors *services.MonitorService, cfg *config.Config) Procedure {
	return &monitorsStuckProcedure{monitors: monitors, cfg: cfg}
}

func (p *monitorsStuckProcedure) Run(ctx context.Context, params map[string]interface{}) error {
	tolerance := p.defaultTolerance()
	if seconds, ok := numericParam(params, "time_tolerance"); ok {
		tolerance = time.Duration(seconds) * time.Second
	}

	_, err := p.monitors.ResetStuck(ctx, tolerance, time.Now().UTC())
	return err
}

// defaultTolerance keeps the tolerance above twice the heartbeat interval
// so a live executor is never mistaken for a stuck one
func (p *monitorsStuckProcedure) defaultTolerance() time.Duration {
	return 2 * p.cfg.ExecutorMonitorHeartbeatDuration()
}

// notificationsAlertSolvedProcedure closes notifications left active after
// their alert was solved
type notificationsAlertSolvedProcedure struct {
	notifications *services.NotificationService
}

func newNotificationsAlertSolvedProcedure(notifications *services.NotificationService) Procedure {
	return &notificationsAlertSolvedProcedure{notifications: notifications}
}

func (p *notificationsAlertSolvedProcedure) Run(ctx context.Context, params map[string]interface{}) error {
	solvedFor := defaultSolvedAlertAge
	if seconds, ok := numericParam(params, "solved_for"); ok {
		solvedFor = time.Duration(seconds) * time.Second
	}

	_, err := p.notifications.CloseForSolvedAlerts(ctx, solvedFor, time.Now().UTC())
	return err
}

// numericParam reads a numeric procedure parameter; YAML decoding may
// surface it as an int or a float
func numericParam(params map[string]interface{}, name string) (float64, bool) {
	switch v := params[name].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
