package service

import (
	"testing"
	"time"

	"github.com/formforge/formforge-backend/internal/model"
)

func intPtr(v int) *int { return &v }

func timedSettings(minutes int) *model.FormSettings {
	return &model.FormSettings{TimeLimitMinutes: intPtr(minutes)}
}

func TestTimeGuard_Limit(t *testing.T) {
	var guard TimeGuard

	if _, ok := guard.Limit(&model.FormSettings{}); ok {
		t.Fatal("expected no limit when time_limit_minutes is unset")
	}
	if _, ok := guard.Limit(timedSettings(0)); ok {
		t.Fatal("expected no limit when time_limit_minutes is zero")
	}
	if _, ok := guard.Limit(nil); ok {
		t.Fatal("expected no limit for nil settings")
	}

	limit, ok := guard.Limit(timedSettings(30))
	if !ok || limit != 30*time.Minute {
		t.Fatalf("expected 30m limit, got=%v ok=%v", limit, ok)
	}
}

func TestTimeGuard_Expired(t *testing.T) {
	var guard TimeGuard
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		settings *model.FormSettings
		now      time.Time
		expired  bool
	}{
		{"no limit never expires", &model.FormSettings{}, start.Add(300 * time.Hour), false},
		{"within limit", timedSettings(30), start.Add(29 * time.Minute), false},
		{"exactly at limit", timedSettings(30), start.Add(30 * time.Minute), true},
		{"past limit", timedSettings(30), start.Add(31 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := guard.Expired(tt.settings, start, tt.now); got != tt.expired {
				t.Fatalf("expected expired=%v, got=%v", tt.expired, got)
			}
		})
	}
}

func TestTimeGuard_Remaining(t *testing.T) {
	var guard TimeGuard
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if _, ok := guard.Remaining(&model.FormSettings{}, start, start.Add(time.Hour)); ok {
		t.Fatal("expected no remaining time without a limit")
	}

	remaining, ok := guard.Remaining(timedSettings(30), start, start.Add(10*time.Minute))
	if !ok || remaining != 20*time.Minute {
		t.Fatalf("expected 20m remaining, got=%v ok=%v", remaining, ok)
	}

	remaining, ok = guard.Remaining(timedSettings(30), start, start.Add(45*time.Minute))
	if !ok || remaining != 0 {
		t.Fatalf("expected 0 remaining past the deadline, got=%v", remaining)
	}
}

func TestTimeGuard_TimeSpentSeconds(t *testing.T) {
	var guard TimeGuard
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		settings *model.FormSettings
		finished time.Time
		want     int
	}{
		{"untimed uses elapsed", &model.FormSettings{}, start.Add(90 * time.Minute), 5400},
		{"within limit uses elapsed", timedSettings(30), start.Add(12 * time.Minute), 720},
		{"late finish clamps to limit", timedSettings(30), start.Add(2 * time.Hour), 1800},
		{"clock skew never negative", timedSettings(30), start.Add(-time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := guard.TimeSpentSeconds(tt.settings, start, tt.finished); got != tt.want {
				t.Fatalf("expected time_spent=%d, got=%d", tt.want, got)
			}
		})
	}
}
