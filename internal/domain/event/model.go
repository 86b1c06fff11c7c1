package event

import "time"

// Event is an append-only record of a state transition
type Event struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"event_source"`
	SourceID  int64                  `json:"event_source_id"`
	MonitorID int64                  `json:"event_source_monitor_id"`
	Name      string                 `json:"event_name"`
	Data      map[string]interface{} `json:"event_data,omitempty"`
	Extra     map[string]interface{} `json:"extra_payload,omitempty"`
	Pending   bool                   `json:"-"`
	CreatedAt time.Time              `json:"created_at"`
}

// Event sources
const (
	SourceMonitor      = "monitor"
	SourceIssue        = "issue"
	SourceAlert        = "alert"
	SourceNotification = "notification"
)

// Payload is the structure delivered to reaction callbacks
type Payload struct {
	EventSource          string                 `json:"event_source"`
	EventSourceID        int64                  `json:"event_source_id"`
	EventSourceMonitorID int64                  `json:"event_source_monitor_id"`
	EventName            string                 `json:"event_name"`
	EventData            map[string]interface{} `json:"event_data,omitempty"`
	ExtraPayload         map[string]interface{} `json:"extra_payload,omitempty"`
}

// Payload builds the reaction payload for the event
func (e *Event) Payload() *Payload {
	return &Payload{
		EventSource:          e.Source,
		EventSourceID:        e.SourceID,
		EventSourceMonitorID: e.MonitorID,
		EventName:            e.Name,
		EventData:            e.Data,
		ExtraPayload:         e.Extra,
	}
}

// Lifecycle event names; a closed set
const (
	AlertCreated              = "alert_created"
	AlertUpdated              = "alert_updated"
	AlertSolved               = "alert_solved"
	AlertLocked               = "alert_locked"
	AlertUnlocked             = "alert_unlocked"
	AlertPriorityIncreased    = "alert_priority_increased"
	AlertPriorityDecreased    = "alert_priority_decreased"
	AlertAcknowledged         = "alert_acknowledged"
	AlertAcknowledgeDismissed = "alert_acknowledge_dismissed"
	AlertIssuesLinked         = "alert_issues_linked"

	IssueCreated          = "issue_created"
	IssueLinked           = "issue_linked"
	IssueSolved           = "issue_solved"
	IssueDropped          = "issue_dropped"
	IssueUpdatedSolved    = "issue_updated_solved"
	IssueUpdatedNotSolved = "issue_updated_not_solved"

	MonitorEnabledChanged   = "monitor_enabled_changed"
	MonitorExecutionSuccess = "monitor_execution_success"
	MonitorExecutionError   = "monitor_execution_error"
	MonitorStuck            = "monitor_stuck"

	NotificationCreated = "notification_created"
	NotificationClosed  = "notification_closed"
)

// Names lists every lifecycle event name
var Names = []string{
	AlertCreated,
	AlertUpdated,
	AlertSolved,
	AlertLocked,
	AlertUnlocked,
	AlertPriorityIncreased,
	AlertPriorityDecreased,
	AlertAcknowledged,
	AlertAcknowledgeDismissed,
	AlertIssuesLinked,
	IssueCreated,
	IssueLinked,
	IssueSolved,
	IssueDropped,
	IssueUpdatedSolved,
	IssueUpdatedNotSolved,
	MonitorEnabledChanged,
	MonitorExecutionSuccess,
	MonitorExecutionError,
	MonitorStuck,
	NotificationCreated,
	NotificationClosed,
}

// IsValidName reports whether name belongs to the closed event name set
func IsValidName(name string) bool {
	for _, known := range Names {
		if known == name {
			return true
		}
	}
	return false
}
