package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCheckClosedFields(t *testing.T) {
	now := time.Now()
	reason := "price"

	tests := []struct {
		name string
		lead Lead
		want error
	}{
		{name: "open without closed", lead: Lead{Status: StatusProposal}},
		{name: "won with closed", lead: Lead{Status: StatusWon, ClosedAt: &now}},
		{name: "lost with reason", lead: Lead{Status: StatusLost, ClosedAt: &now, LossReason: &reason}},
		{name: "won without closed", lead: Lead{Status: StatusWon}, want: ErrClosedAtMismatch},
		{name: "open with closed", lead: Lead{Status: StatusQualified, ClosedAt: &now}, want: ErrClosedAtMismatch},
		{name: "won with reason", lead: Lead{Status: StatusWon, ClosedAt: &now, LossReason: &reason}, want: ErrLossReasonOnOpenLead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.lead.CheckClosedFields(); !errors.Is(err, tt.want) {
				t.Errorf("CheckClosedFields() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCloneDoesNotShareState(t *testing.T) {
	p := 50
	now := time.Now()
	original := Lead{WinProbability: &p, ClosedAt: &now, Tags: []string{"vip"}}

	clone := original.Clone()
	*clone.WinProbability = 90
	clone.Tags[0] = "cold"

	if *original.WinProbability != 50 {
		t.Error("clone shares WinProbability pointer")
	}
	if original.Tags[0] != "vip" {
		t.Error("clone shares Tags backing array")
	}
}

func TestEffectiveWinProbability(t *testing.T) {
	override := 5
	if got := (Lead{Status: StatusProposal}).EffectiveWinProbability(); got != 60 {
		t.Errorf("default = %d, want 60", got)
	}
	if got := (Lead{Status: StatusProposal, WinProbability: &override}).EffectiveWinProbability(); got != 5 {
		t.Errorf("override = %d, want 5", got)
	}
}
