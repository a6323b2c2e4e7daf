package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAutomationStatusChange = "automation.status_change"

const TaskAutomationSweep = "automation.sweep"

const defaultQueue = "automation"

type AutomationStatusChangePayload struct {
	TenantID  string `json:"tenantId"`
	LeadID    string `json:"leadId"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

func NewAutomationStatusChangeTask(payload AutomationStatusChangePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutomationStatusChange, data, asynq.MaxRetry(5)), nil
}

func ParseAutomationStatusChangePayload(task *asynq.Task) (AutomationStatusChangePayload, error) {
	var payload AutomationStatusChangePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AutomationStatusChangePayload{}, err
	}
	return payload, nil
}

// NewAutomationSweepTask carries no payload; the sweep visits every tenant.
func NewAutomationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAutomationSweep, nil, asynq.MaxRetry(0))
}
