package monitor

import (
	"testing"
	"time"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already normalized", input: "orders_backlog", want: "orders_backlog"},
		{name: "uppercase", input: "OrdersBacklog", want: "ordersbacklog"},
		{name: "spaces and dashes", input: "Orders - Backlog Check", want: "orders_backlog_check"},
		{name: "repeated separators collapse", input: "orders---backlog", want: "orders_backlog"},
		{name: "leading and trailing trimmed", input: "  orders backlog  ", want: "orders_backlog"},
		{name: "unicode stripped", input: "café_monitor", want: "caf_monitor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeName(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizeName(got); again != got {
				t.Errorf("NormalizeName not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestMonitor_StuckReference(t *testing.T) {
	heartbeat := time.Date(2026, 8, 24, 10, 3, 0, 0, time.UTC)
	running := time.Date(2026, 8, 24, 10, 1, 0, 0, time.UTC)
	queued := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		monitor Monitor
		want    *time.Time
	}{
		{
			name:    "heartbeat wins",
			monitor: Monitor{LastHeartbeat: &heartbeat, RunningAt: &running, QueuedAt: &queued},
			want:    &heartbeat,
		},
		{
			name:    "falls back to running",
			monitor: Monitor{RunningAt: &running, QueuedAt: &queued},
			want:    &running,
		},
		{
			name:    "falls back to queued",
			monitor: Monitor{QueuedAt: &queued},
			want:    &queued,
		},
		{
			name:    "nothing recorded",
			monitor: Monitor{},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.monitor.StuckReference()
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("StuckReference() = %v, want %v", got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("StuckReference() = %v, want %v", got, tt.want)
			}
		})
	}
}
