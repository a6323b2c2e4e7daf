// Package scoring computes the 0-100 priority score of a lead.
// Every function here is pure: callers pass the clock explicitly.
package scoring

import (
	"time"

	"crm_pipeline_backend/internal/leads/domain"
)

const (
	// scoreVersion tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	scoreVersion = "2026-v1"

	// Maximum contribution from each component.
	maxBasicContribution   = 20
	maxStatusContribution  = 35
	maxRecencyContribution = 30
	maxCustomContribution  = 20

	pointsPerCustomField = 5
	maxScore             = 100
)

// Breakdown itemizes a score.
type Breakdown struct {
	Basic   int    `json:"basic"`
	Status  int    `json:"status"`
	Recency int    `json:"recency"`
	Custom  int    `json:"custom"`
	Total   int    `json:"total"`
	Version string `json:"version"`
}

// Score returns the clamped score of lead as of now.
func Score(lead domain.Lead, customFieldsCount int, now time.Time) int {
	return Explain(lead, customFieldsCount, now).Total
}

// Explain returns the per-component score.
func Explain(lead domain.Lead, customFieldsCount int, now time.Time) Breakdown {
	b := Breakdown{
		Basic:   basicPoints(lead),
		Status:  min(lead.Status.Weight(), maxStatusContribution),
		Recency: recencyPoints(lead.LastInteractionAt, now),
		Custom:  customPoints(customFieldsCount),
		Version: scoreVersion,
	}
	b.Total = clamp(b.Basic+b.Status+b.Recency+b.Custom, 0, maxScore)
	return b
}

func basicPoints(lead domain.Lead) int {
	points := 0
	if hasText(lead.DisplayName) {
		points += 5
	}
	if hasText(lead.Phone) {
		points += 5
	}
	if lead.EstimatedValue > 0 {
		points += 10
	}
	return min(points, maxBasicContribution)
}

// recencyPoints counts whole days since the last interaction.
// A missing or zero timestamp earns nothing; a future one counts as today.
func recencyPoints(lastInteraction *time.Time, now time.Time) int {
	days, ok := daysSince(lastInteraction, now)
	if !ok {
		return 0
	}
	switch {
	case days <= 1:
		return maxRecencyContribution
	case days <= 3:
		return 25
	case days <= 7:
		return 15
	case days <= 14:
		return 5
	default:
		return 0
	}
}

func customPoints(count int) int {
	if count <= 0 {
		return 0
	}
	// Cap the count first so huge values cannot overflow the multiplication.
	return min(min(count, maxCustomContribution)*pointsPerCustomField, maxCustomContribution)
}

func daysSince(t *time.Time, now time.Time) (int, bool) {
	if t == nil || t.IsZero() {
		return 0, false
	}
	// Negative for future timestamps, which fall in the most recent bucket.
	return int(now.Sub(*t) / (24 * time.Hour)), true
}

func hasText(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
