package email

import "time"

// Envelope holds the envelope fields of an IMAP message that end up on a
// mail record.
type Envelope struct {
	Subject string
	From    string
	Date    time.Time
}

// ParsedMessage holds the parsed content of an email message.
type ParsedMessage struct {
	Envelope Envelope
	TextBody string
	HTMLBody string
}
