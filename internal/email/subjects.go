package email

const (
	subjectAutomationNotificationFmt = "[%s] %s"
	defaultNotificationTitle         = "Pipeline notification"
)
