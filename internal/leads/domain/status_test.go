package domain

import "testing"

func TestStatusTables(t *testing.T) {
	tests := []struct {
		status      Status
		weight      int
		probability int
		terminal    bool
	}{
		{StatusNew, 0, 10, false},
		{StatusContacted, 10, 20, false},
		{StatusQualified, 20, 40, false},
		{StatusProposal, 25, 60, false},
		{StatusNegotiating, 30, 80, false},
		{StatusWon, 35, 100, true},
		{StatusLost, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Weight(); got != tt.weight {
				t.Errorf("Weight() = %d, want %d", got, tt.weight)
			}
			if got := tt.status.DefaultWinProbability(); got != tt.probability {
				t.Errorf("DefaultWinProbability() = %d, want %d", got, tt.probability)
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestWeightNeverDecreasesMovingForward(t *testing.T) {
	open := []Status{StatusNew, StatusContacted, StatusQualified, StatusProposal, StatusNegotiating}
	for i := 1; i < len(open); i++ {
		if open[i].Weight() < open[i-1].Weight() {
			t.Errorf("%s weight %d < %s weight %d", open[i], open[i].Weight(), open[i-1], open[i-1].Weight())
		}
	}
}

func TestEmptyStatusGroupsAsNew(t *testing.T) {
	if got := Status("").OrDefault(); got != StatusNew {
		t.Errorf("empty status OrDefault = %q, want new", got)
	}
	if got := Status("archived").OrDefault(); got != StatusNew {
		t.Errorf("unknown status OrDefault = %q, want new", got)
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" Won "); !ok || s != StatusWon {
		t.Errorf("ParseStatus(Won) = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Error("ParseStatus accepted unknown status")
	}
}

func TestStatusesIsACopy(t *testing.T) {
	s := Statuses()
	s[0] = StatusLost
	if Statuses()[0] != StatusNew {
		t.Error("Statuses exposes internal slice")
	}
}
