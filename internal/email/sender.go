// Package email mirrors automation notifications to a mailbox.
package email

import (
	"context"

	"crm_pipeline_backend/platform/config"
)

// AutomationNotification is the mail view of a notification an automation created.
type AutomationNotification struct {
	RuleName string
	Kind     string
	Title    string
	Message  string
	LeadURL  string
}

// Sender delivers notification mails.
type Sender interface {
	SendAutomationNotification(ctx context.Context, n AutomationNotification) error
}

// NoopSender drops every mail. It is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendAutomationNotification(ctx context.Context, n AutomationNotification) error {
	return nil
}

// NewSender returns an SMTP sender when SMTP is configured and a NoopSender otherwise.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.IsSMTPEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetSMTPFromAddress(),
		cfg.GetSMTPFromName(),
		cfg.GetSMTPNotifyAddress(),
	)
}
