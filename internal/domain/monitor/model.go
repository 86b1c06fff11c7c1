package monitor

import (
	"regexp"
	"strings"
	"time"
)

// Monitor represents a registered detection unit
type Monitor struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	Code            string            `json:"code,omitempty"`
	AdditionalFiles map[string]string `json:"additional_files,omitempty"`
	Hash            string            `json:"hash,omitempty"`

	Queued    bool       `json:"queued"`
	Running   bool       `json:"running"`
	QueuedAt  *time.Time `json:"queued_at,omitempty"`
	RunningAt *time.Time `json:"running_at,omitempty"`

	SearchExecutedAt        *time.Time `json:"search_executed_at,omitempty"`
	UpdateExecutedAt        *time.Time `json:"update_executed_at,omitempty"`
	LastHeartbeat           *time.Time `json:"last_heartbeat,omitempty"`
	LastSuccessfulExecution *time.Time `json:"last_successful_execution,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run kinds queued by the controller and executed by the executor
const (
	RunKindSearch = "search"
	RunKindUpdate = "update"
)

var (
	invalidNameChars   = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

// NormalizeName normalizes a monitor name: lowercased, non-alphanumerics
// converted to underscores, repeated underscores collapsed and trimmed.
// The normalization is idempotent
func NormalizeName(name string) string {
	normalized := strings.ToLower(name)
	normalized = invalidNameChars.ReplaceAllString(normalized, "_")
	normalized = repeatedUnderscore.ReplaceAllString(normalized, "_")
	return strings.Trim(normalized, "_")
}

// StuckReference returns the timestamp used to decide if a running monitor is
// stuck: the last heartbeat when available, falling back to the running and
// queued timestamps
func (m *Monitor) StuckReference() *time.Time {
	if m.LastHeartbeat != nil {
		return m.LastHeartbeat
	}
	if m.RunningAt != nil {
		return m.RunningAt
	}
	return m.QueuedAt
}
