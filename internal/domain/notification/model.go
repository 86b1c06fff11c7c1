package notification

import "time"

// Notification represents an outbound channel instance tied to one alert.
// Target is an opaque string holding the channel and message identifiers
type Notification struct {
	ID        int64                  `json:"id"`
	MonitorID int64                  `json:"monitor_id"`
	AlertID   int64                  `json:"alert_id"`
	Target    string                 `json:"target"`
	Status    string                 `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	ClosedAt  *time.Time             `json:"closed_at,omitempty"`
}

// Notification status; closed is terminal
const (
	StatusActive = "active"
	StatusClosed = "closed"
)
