// Package domain holds automation rules: a trigger deciding which leads a rule
// applies to and an action executed for each of them.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	leaddomain "crm_pipeline_backend/internal/leads/domain"
)

// TriggerType is the persisted discriminator of a trigger.
type TriggerType string

const (
	TriggerStatusChange   TriggerType = "status_change"
	TriggerTimeInStatus   TriggerType = "time_in_status"
	TriggerValueThreshold TriggerType = "value_threshold"
	TriggerNoInteraction  TriggerType = "no_interaction"
)

// ErrInvalidConfig wraps every trigger and action decoding failure.
var ErrInvalidConfig = errors.New("invalid automation config")

// Trigger is a closed union; the concrete types below are the only members.
type Trigger interface {
	Type() TriggerType
	isTrigger()
}

// StatusChangeTrigger fires for a single status transition event. Empty
// statuses match any value.
type StatusChangeTrigger struct {
	FromStatus leaddomain.Status `json:"from_status,omitempty"`
	ToStatus   leaddomain.Status `json:"to_status,omitempty"`
}

// TimeInStatusTrigger matches leads that have sat in Status for more than Days.
type TimeInStatusTrigger struct {
	Status leaddomain.Status `json:"status"`
	Days   int               `json:"days"`
}

// ValueThresholdTrigger matches leads whose estimated value lies in [Min, Max].
// Either bound may be absent.
type ValueThresholdTrigger struct {
	Min *int64 `json:"min_value,omitempty"`
	Max *int64 `json:"max_value,omitempty"`
}

// NoInteractionTrigger matches leads nobody has touched for more than Days.
type NoInteractionTrigger struct {
	Days int `json:"days"`
}

func (StatusChangeTrigger) Type() TriggerType   { return TriggerStatusChange }
func (TimeInStatusTrigger) Type() TriggerType   { return TriggerTimeInStatus }
func (ValueThresholdTrigger) Type() TriggerType { return TriggerValueThreshold }
func (NoInteractionTrigger) Type() TriggerType  { return TriggerNoInteraction }

func (StatusChangeTrigger) isTrigger()   {}
func (TimeInStatusTrigger) isTrigger()   {}
func (ValueThresholdTrigger) isTrigger() {}
func (NoInteractionTrigger) isTrigger()  {}

// DecodeTrigger parses a persisted or submitted trigger config and validates it.
func DecodeTrigger(kind TriggerType, raw json.RawMessage) (Trigger, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		trigger Trigger
		err     error
	)
	switch kind {
	case TriggerStatusChange:
		var t StatusChangeTrigger
		err = json.Unmarshal(raw, &t)
		trigger = t
	case TriggerTimeInStatus:
		var t TimeInStatusTrigger
		err = json.Unmarshal(raw, &t)
		trigger = t
	case TriggerValueThreshold:
		var t ValueThresholdTrigger
		err = json.Unmarshal(raw, &t)
		trigger = t
	case TriggerNoInteraction:
		var t NoInteractionTrigger
		err = json.Unmarshal(raw, &t)
		trigger = t
	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidConfig, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s trigger: %v", ErrInvalidConfig, kind, err)
	}
	if err := ValidateTrigger(trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

// ValidateTrigger checks the typed config of a trigger.
func ValidateTrigger(trigger Trigger) error {
	switch t := trigger.(type) {
	case StatusChangeTrigger:
		if t.FromStatus != "" && !t.FromStatus.IsKnown() {
			return fmt.Errorf("%w: unknown from_status %q", ErrInvalidConfig, t.FromStatus)
		}
		if t.ToStatus != "" && !t.ToStatus.IsKnown() {
			return fmt.Errorf("%w: unknown to_status %q", ErrInvalidConfig, t.ToStatus)
		}
	case TimeInStatusTrigger:
		if !t.Status.IsKnown() {
			return fmt.Errorf("%w: time_in_status requires a known status", ErrInvalidConfig)
		}
		if t.Days < 1 {
			return fmt.Errorf("%w: time_in_status requires days >= 1", ErrInvalidConfig)
		}
	case ValueThresholdTrigger:
		if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
			return fmt.Errorf("%w: min_value exceeds max_value", ErrInvalidConfig)
		}
	case NoInteractionTrigger:
		if t.Days < 1 {
			return fmt.Errorf("%w: no_interaction requires days >= 1", ErrInvalidConfig)
		}
	case nil:
		return fmt.Errorf("%w: trigger is required", ErrInvalidConfig)
	}
	return nil
}
