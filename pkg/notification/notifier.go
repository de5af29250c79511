package notification

// NoticeType identifies a kind of notification (e.g. sign-up confirmation).
type NoticeType string

const (
	ConfirmSignup   NoticeType = "confirm_signup"
	RecoverPassword NoticeType = "recover_password"
)

// NotificationData carries the recipient and template data for one notification.
type NotificationData struct {
	To      string            // Recipient identifier (email address)
	Subject string            // Optional subject override
	Body    string            // Pre-rendered body; empty when a template is registered
	Data    map[string]string // Template data (e.g. "Link", "Name")
}

// NoticeTemplate is a registered template for one notice type and system.
type NoticeTemplate struct {
	Subject string
	Text    string // text/template source for the plain-text body
	HTML    string // optional html/template source
}

// Notifier delivers a rendered notification over one delivery system.
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
