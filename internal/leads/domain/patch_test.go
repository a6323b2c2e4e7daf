package domain

import (
	"slices"
	"testing"
	"time"
)

func TestPatchApplyLeavesSourceUntouched(t *testing.T) {
	reason := "price"
	closed := time.Now()
	lead := Lead{Status: StatusLost, ClosedAt: &closed, LossReason: &reason, Tags: []string{"a"}}

	reopen := StatusQualified
	tags := []string{"b", "c"}
	patch := Patch{
		Status:     &reopen,
		ClosedAt:   Clear[time.Time](),
		LossReason: Clear[string](),
		Tags:       &tags,
	}

	got := patch.Apply(lead)

	if got.Status != StatusQualified || got.ClosedAt != nil || got.LossReason != nil {
		t.Errorf("patched lead = %+v", got)
	}
	if !slices.Equal(got.Tags, []string{"b", "c"}) {
		t.Errorf("tags = %v", got.Tags)
	}
	if lead.Status != StatusLost || lead.ClosedAt == nil || *lead.LossReason != "price" {
		t.Error("Apply mutated its input")
	}
}

func TestPatchUnsetOptionalIsNoop(t *testing.T) {
	p := 70
	lead := Lead{WinProbability: &p}
	got := Patch{}.Apply(lead)
	if got.WinProbability == nil || *got.WinProbability != 70 {
		t.Errorf("WinProbability = %v, want 70", got.WinProbability)
	}
	if !(Patch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
}

func TestPatchFields(t *testing.T) {
	status := StatusWon
	patch := Patch{Status: &status, WinProbability: SetTo(100), ClosedAt: SetTo(time.Now())}
	want := []string{"status", "win_probability", "closed_at"}
	if got := patch.Fields(); !slices.Equal(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}
