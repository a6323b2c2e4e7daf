package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ActionType is the persisted discriminator of an action.
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionSendNotification ActionType = "send_notification"
	ActionUpdateField      ActionType = "update_field"
	ActionSendMessage      ActionType = "send_message"
)

// Action is a closed union; the concrete types below are the only members.
// String fields may contain {{name}}, {{phone}}, {{status}} and {{value}}.
type Action interface {
	Type() ActionType
	isAction()
}

// CreateTaskAction inserts a follow-up task due DaysOffset days after the run.
type CreateTaskAction struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DaysOffset  int    `json:"days_offset,omitempty"`
}

// SendNotificationAction stores a notification for the tenant. An empty Title
// falls back to the rule name.
type SendNotificationAction struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Kind    string `json:"type,omitempty"`
}

// UpdateFieldAction writes Value into a built-in lead field or, for any other
// key, into the lead's custom field of that name.
type UpdateFieldAction struct {
	FieldKey string `json:"field_key"`
	Value    string `json:"value"`
}

// SendMessageAction sends Template to the lead through a tenant messaging instance.
type SendMessageAction struct {
	InstanceID uuid.UUID `json:"instance_id"`
	Template   string    `json:"template"`
}

func (CreateTaskAction) Type() ActionType       { return ActionCreateTask }
func (SendNotificationAction) Type() ActionType { return ActionSendNotification }
func (UpdateFieldAction) Type() ActionType      { return ActionUpdateField }
func (SendMessageAction) Type() ActionType      { return ActionSendMessage }

func (CreateTaskAction) isAction()       {}
func (SendNotificationAction) isAction() {}
func (UpdateFieldAction) isAction()      {}
func (SendMessageAction) isAction()      {}

const (
	defaultTaskTitle           = "Automatic task"
	defaultTaskPriority        = "medium"
	defaultNotificationMessage = "New notification"
	defaultNotificationKind    = "info"
	defaultMessageTemplate     = "Hello {{name}}!"
)

var taskPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}

var notificationKinds = map[string]bool{"info": true, "success": true, "warning": true, "error": true}

// DecodeAction parses an action config, fills defaults and validates it.
func DecodeAction(kind ActionType, raw json.RawMessage) (Action, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		action Action
		err    error
	)
	switch kind {
	case ActionCreateTask:
		var a CreateTaskAction
		err = json.Unmarshal(raw, &a)
		if a.Title == "" {
			a.Title = defaultTaskTitle
		}
		if a.Priority == "" {
			a.Priority = defaultTaskPriority
		}
		action = a
	case ActionSendNotification:
		var a SendNotificationAction
		err = json.Unmarshal(raw, &a)
		if a.Message == "" {
			a.Message = defaultNotificationMessage
		}
		if a.Kind == "" {
			a.Kind = defaultNotificationKind
		}
		action = a
	case ActionUpdateField:
		var a UpdateFieldAction
		err = json.Unmarshal(raw, &a)
		a.FieldKey = strings.TrimSpace(a.FieldKey)
		action = a
	case ActionSendMessage:
		var a SendMessageAction
		err = json.Unmarshal(raw, &a)
		if a.Template == "" {
			a.Template = defaultMessageTemplate
		}
		action = a
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidConfig, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s action: %v", ErrInvalidConfig, kind, err)
	}
	if err := ValidateAction(action); err != nil {
		return nil, err
	}
	return action, nil
}

// ValidateAction checks the typed config of an action.
func ValidateAction(action Action) error {
	switch a := action.(type) {
	case CreateTaskAction:
		if !taskPriorities[a.Priority] {
			return fmt.Errorf("%w: unknown task priority %q", ErrInvalidConfig, a.Priority)
		}
		if a.DaysOffset < 0 {
			return fmt.Errorf("%w: days_offset must not be negative", ErrInvalidConfig)
		}
	case SendNotificationAction:
		if !notificationKinds[a.Kind] {
			return fmt.Errorf("%w: unknown notification type %q", ErrInvalidConfig, a.Kind)
		}
	case UpdateFieldAction:
		if a.FieldKey == "" {
			return fmt.Errorf("%w: update_field requires field_key", ErrInvalidConfig)
		}
		if f, ok := LookupBuiltinField(a.FieldKey); ok && !strings.Contains(a.Value, "{{") {
			if err := f.check(a.Value); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, a.FieldKey, err)
			}
		}
	case SendMessageAction:
		if a.InstanceID == uuid.Nil {
			return fmt.Errorf("%w: send_message requires instance_id", ErrInvalidConfig)
		}
	case nil:
		return fmt.Errorf("%w: action is required", ErrInvalidConfig)
	}
	return nil
}
