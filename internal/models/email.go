package models

// EmailAttachment is an inline file such as a calendar invite.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailMessage is a provider-neutral outgoing email.
type EmailMessage struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []EmailAttachment
}
