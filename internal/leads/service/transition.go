package service

import (
	"strings"
	"time"

	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/scoring"
)

// BuildTransitionPatch computes the write that moves lead to newStatus.
// Terminal statuses stamp closedAt; any other status clears the closing fields.
// A loss reason is only written for Lost and only when one is given. The win
// probability default is filled in only when the lead has none. The score is
// recomputed against the lead as it will look after the patch.
func BuildTransitionPatch(lead domain.Lead, newStatus domain.Status, lossReason, lossDetails *string, now time.Time) domain.Patch {
	patch := domain.Patch{Status: &newStatus}

	switch {
	case newStatus == domain.StatusWon:
		patch.ClosedAt = domain.SetTo(now)
		patch.LossReason = domain.Clear[string]()
		patch.LossReasonDetails = domain.Clear[string]()
	case newStatus == domain.StatusLost:
		patch.ClosedAt = domain.SetTo(now)
		if reason := trimmed(lossReason); reason != nil {
			patch.LossReason = domain.Optional[string]{Value: reason, Set: true}
			patch.LossReasonDetails = domain.Optional[string]{Value: trimmed(lossDetails), Set: true}
		}
	default:
		patch.ClosedAt = domain.Clear[time.Time]()
		patch.LossReason = domain.Clear[string]()
		patch.LossReasonDetails = domain.Clear[string]()
	}

	if lead.WinProbability == nil {
		patch.WinProbability = domain.SetTo(newStatus.DefaultWinProbability())
	}

	score := scoring.Score(patch.Apply(lead), lead.CustomFieldsCount, now)
	patch.Score = &score
	return patch
}

// isNoopMove is true when the lead already sits in newStatus and there is no
// loss reason to record.
func isNoopMove(lead domain.Lead, newStatus domain.Status, lossReason *string) bool {
	if lead.Status.OrDefault() != newStatus {
		return false
	}
	return newStatus != domain.StatusLost || trimmed(lossReason) == nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
