package schedule

import (
	"testing"
	"time"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		spec string
		want bool
	}{
		{"* * * * *", true},
		{"*/5 * * * *", true},
		{"0 3 * * 1", true},
		{"@hourly", true},
		{"", false},
		{"not a cron", false},
		{"61 * * * *", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.spec); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestIsTriggered(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec string
		last time.Time
		now  time.Time
		want bool
	}{
		{
			name: "activation between last and now",
			spec: "*/5 * * * *",
			last: base,
			now:  base.Add(6 * time.Minute),
			want: true,
		},
		{
			name: "no activation yet",
			spec: "*/5 * * * *",
			last: base,
			now:  base.Add(4 * time.Minute),
			want: false,
		},
		{
			name: "activation exactly at now",
			spec: "*/5 * * * *",
			last: base,
			now:  base.Add(5 * time.Minute),
			want: true,
		},
		{
			name: "daily cron not yet due",
			spec: "0 3 * * *",
			last: base,
			now:  base.Add(time.Hour),
			want: false,
		},
		{
			name: "daily cron due next day",
			spec: "0 3 * * *",
			last: base,
			now:  base.Add(18 * time.Hour),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsTriggered(tt.spec, tt.last, tt.now, time.UTC)
			if err != nil {
				t.Fatalf("IsTriggered() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsTriggered() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTriggered_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)

	// 01:30 UTC is 03:30 local, so the 03:00 local activation already passed
	last := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 24, 1, 30, 0, 0, time.UTC)

	got, err := IsTriggered("0 3 * * *", last, now, loc)
	if err != nil {
		t.Fatalf("IsTriggered() error = %v", err)
	}
	if !got {
		t.Error("IsTriggered() = false, want true in the shifted location")
	}

	got, err = IsTriggered("0 3 * * *", last, now, time.UTC)
	if err != nil {
		t.Fatalf("IsTriggered() error = %v", err)
	}
	if got {
		t.Error("IsTriggered() = true, want false in UTC")
	}
}

func TestIsTriggered_BadSpec(t *testing.T) {
	if _, err := IsTriggered("bogus", time.Now(), time.Now(), time.UTC); err == nil {
		t.Error("IsTriggered() accepted an invalid expression")
	}
}

func TestNextTrigger(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 2, 30, 0, time.UTC)

	next, err := NextTrigger("*/5 * * * *", now, time.UTC)
	if err != nil {
		t.Fatalf("NextTrigger() error = %v", err)
	}
	want := time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextTrigger() = %v, want %v", next, want)
	}
}

func TestUntilNextTrigger(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 2, 30, 0, time.UTC)

	wait, err := UntilNextTrigger("*/5 * * * *", now, time.UTC)
	if err != nil {
		t.Fatalf("UntilNextTrigger() error = %v", err)
	}
	if wait != 2*time.Minute+30*time.Second {
		t.Errorf("UntilNextTrigger() = %v, want 2m30s", wait)
	}
}
