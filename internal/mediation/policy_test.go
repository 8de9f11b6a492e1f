package mediation

import (
	"testing"
	"time"
)

func TestShouldMediate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Minute

	tests := []struct {
		name          string
		score         int
		lastMediation time.Time
		manual        bool
		want          bool
	}{
		{"manual always wins", 0, now.Add(-time.Minute), true, true},
		{"score below threshold", 3, time.Time{}, false, false},
		{"score at threshold, never mediated", 4, time.Time{}, false, true},
		{"high score inside cooldown", 9, now.Add(-4 * time.Minute), false, false},
		{"high score after cooldown", 9, now.Add(-6 * time.Minute), false, true},
		{"exactly at cooldown boundary", 5, now.Add(-cooldown), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldMediate(tt.score, tt.lastMediation, tt.manual, now, cooldown)
			if got != tt.want {
				t.Errorf("ShouldMediate(score=%d, manual=%v) = %v, want %v",
					tt.score, tt.manual, got, tt.want)
			}
		})
	}
}

func TestIsManualTrigger(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"/sos", true},
		{"/mediar", true},
		{"/ajuda", true},
		{"  /SOS  ", true},
		{"/socorro", false},
		{"preciso de ajuda", false},
		{"me dá um /sos aqui", false},
	}

	for _, tt := range tests {
		if got := IsManualTrigger(tt.text); got != tt.want {
			t.Errorf("IsManualTrigger(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
