package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type automationNotificationEmailData struct {
	baseEmailData
	Kind     string
	Message  string
	RuleName string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderAutomationNotification(n AutomationNotification) (subject, body string, err error) {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = defaultNotificationTitle
	}
	kind := strings.ToLower(strings.TrimSpace(n.Kind))
	if kind == "" {
		kind = "info"
	}

	data := automationNotificationEmailData{
		baseEmailData: baseEmailData{
			Title:      title,
			Heading:    title,
			Subheading: n.RuleName,
		},
		Kind:     kind,
		Message:  n.Message,
		RuleName: n.RuleName,
	}
	if n.LeadURL != "" {
		data.CTALabel = "Open lead"
		data.CTAURL = n.LeadURL
	}

	body, err = renderEmailTemplate("automation_notification.html", data)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectAutomationNotificationFmt, strings.ToUpper(kind), title), body, nil
}
