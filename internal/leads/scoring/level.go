package scoring

import (
	"time"

	"crm_pipeline_backend/internal/leads/domain"
)

// Level buckets a score for display.
type Level string

const (
	LevelHot    Level = "hot"
	LevelWarm   Level = "warm"
	LevelCold   Level = "cold"
	LevelFrozen Level = "frozen"
)

// LevelFor maps a score to its level.
func LevelFor(score int) Level {
	switch {
	case score >= 75:
		return LevelHot
	case score >= 50:
		return LevelWarm
	case score >= 25:
		return LevelCold
	default:
		return LevelFrozen
	}
}

// Description is a one-line recommendation for the level.
func (l Level) Description() string {
	switch l {
	case LevelHot:
		return "High priority lead, act immediately"
	case LevelWarm:
		return "Good potential, follow up frequently"
	case LevelCold:
		return "Early stage lead, nurture the relationship"
	default:
		return "Inactive lead, needs reactivation"
	}
}

// Tips lists concrete actions that would raise the score.
func Tips(lead domain.Lead, now time.Time) []string {
	var tips []string

	if !hasText(lead.DisplayName) {
		tips = append(tips, "Add the lead's name")
	}
	if lead.EstimatedValue <= 0 {
		tips = append(tips, "Set the estimated deal value")
	}
	if lead.LastInteractionAt == nil {
		tips = append(tips, "Record an interaction with the lead")
	} else if days, ok := daysSince(lead.LastInteractionAt, now); ok && days > 7 {
		tips = append(tips, "Get back in touch, last interaction was more than 7 days ago")
	}
	switch lead.Status.OrDefault() {
	case domain.StatusNew, domain.StatusContacted:
		tips = append(tips, "Advance the lead in the pipeline by qualifying it or sending a proposal")
	}

	return tips
}
