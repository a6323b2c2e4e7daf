package domain

import (
	"strconv"
	"strings"
	"time"

	leaddomain "crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/platform/phone"
)

// Matches reports whether lead satisfies trigger at now. StatusChange triggers
// only match the lead named by event; without an event they never match.
func Matches(trigger Trigger, lead leaddomain.Lead, event *StatusChangeEvent, now time.Time) bool {
	switch t := trigger.(type) {
	case StatusChangeTrigger:
		if event == nil || event.LeadID != lead.ID {
			return false
		}
		fromOK := t.FromStatus == "" || t.FromStatus == event.OldStatus.OrDefault()
		toOK := t.ToStatus == "" || t.ToStatus == event.NewStatus.OrDefault()
		return fromOK && toOK
	case TimeInStatusTrigger:
		if lead.Status.OrDefault() != t.Status {
			return false
		}
		return lead.UpdatedAt.Before(now.AddDate(0, 0, -t.Days))
	case ValueThresholdTrigger:
		if t.Min != nil && lead.EstimatedValue < *t.Min {
			return false
		}
		if t.Max != nil && lead.EstimatedValue > *t.Max {
			return false
		}
		return true
	case NoInteractionTrigger:
		if lead.LastInteractionAt == nil {
			return true
		}
		return lead.LastInteractionAt.Before(now.AddDate(0, 0, -t.Days))
	default:
		return false
	}
}

// Render substitutes the lead placeholders in text.
func Render(text string, lead leaddomain.Lead) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return strings.NewReplacer(
		"{{name}}", LeadName(lead),
		"{{phone}}", leadPhone(lead),
		"{{status}}", string(lead.Status.OrDefault()),
		"{{value}}", strconv.FormatInt(lead.EstimatedValue, 10),
	).Replace(text)
}

// LeadName is the display name, or the chat address prefix when unnamed.
func LeadName(lead leaddomain.Lead) string {
	if name := strings.TrimSpace(lead.DisplayName); name != "" {
		return name
	}
	return leadPhone(lead)
}

func leadPhone(lead leaddomain.Lead) string {
	if prefix := phone.DisplayPrefix(lead.RemoteJID); prefix != "" {
		return prefix
	}
	return strings.TrimPrefix(lead.Phone, "+")
}
