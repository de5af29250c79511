package notification

// RegisterDefaults registers the built-in email templates for the auth flows.
func RegisterDefaults(nm *NotificationManager) error {
	if err := nm.RegisterNotification(ConfirmSignup, EmailSystem, NoticeTemplate{
		Subject: "Confirm your Ventura account",
		Text: "Hi {{.Name}},\n\n" +
			"Confirm your email to finish setting up your account:\n\n" +
			"{{.Link}}\n\n" +
			"The link expires in {{.ExpiryHours}} hours. If you didn't sign up, ignore this email.\n",
	}); err != nil {
		return err
	}

	return nm.RegisterNotification(RecoverPassword, EmailSystem, NoticeTemplate{
		Subject: "Reset your Ventura password",
		Text: "Hi,\n\n" +
			"We received a request to reset your password. Open the newest link to continue:\n\n" +
			"{{.Link}}\n\n" +
			"The link expires in {{.ExpiryHours}} hours. If you didn't request this, ignore this email.\n",
	})
}
