package notification

import "log/slog"

// LogNotifier writes notifications to the log instead of delivering them.
// Used when no SMTP server is configured, typically in development.
type LogNotifier struct{}

func (l *LogNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	slog.Info("Notification (not delivered)",
		"type", noticeType,
		"to", notification.To,
		"link", notification.Data["Link"])
	return nil
}
