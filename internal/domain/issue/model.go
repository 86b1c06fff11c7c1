package issue

import "time"

// Issue represents an instance of a problem identified by a monitor,
// uniquely keyed by model_id within the monitor
type Issue struct {
	ID        int64                  `json:"id"`
	MonitorID int64                  `json:"monitor_id"`
	AlertID   *int64                 `json:"alert_id,omitempty"`
	ModelID   string                 `json:"model_id"`
	Status    string                 `json:"status"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
	SolvedAt  *time.Time             `json:"solved_at,omitempty"`
	DroppedAt *time.Time             `json:"dropped_at,omitempty"`
}

// Issue status; solved and dropped are terminal
const (
	StatusActive  = "active"
	StatusSolved  = "solved"
	StatusDropped = "dropped"
)

// IsActive reports whether the issue is still active
func (i *Issue) IsActive() bool {
	return i.Status == StatusActive
}

// Age returns how long the issue has been open relative to now
func (i *Issue) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}
