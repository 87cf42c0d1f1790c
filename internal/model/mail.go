package model

import "time"

// Unknown is stored for any classification field the provider left empty.
const Unknown = "unknown"

// MailRecord is a classified inbound message persisted for a user.
type MailRecord struct {
	// ID is the internal unique identifier.
	ID string `json:"id" db:"id"`

	// UserID owns the record. (UserID, MessageID) is unique.
	UserID string `json:"user_id" db:"user_id"`

	// MessageID is the mail source's identifier for the message.
	MessageID string `json:"message_id" db:"message_id"`

	// CompanyName is the employer extracted by the classifier.
	CompanyName string `json:"company_name" db:"company_name"`

	// StatusLabel is one of the application status labels.
	StatusLabel string `json:"status_label" db:"status_label"`

	// JobTitle is the role extracted by the classifier.
	JobTitle string `json:"job_title" db:"job_title"`

	Subject string `json:"subject" db:"subject"`
	Sender  string `json:"sender" db:"sender"`

	// ReceivedAt is the message date reported by the mail source.
	ReceivedAt time.Time `json:"received_at" db:"received_at"`

	// ClassifiedBy names what produced the label: a provider name or
	// "pattern:<phrase>".
	ClassifiedBy string `json:"classified_by" db:"classified_by"`

	// Confidence is the pattern confidence, or 0 for provider results.
	Confidence float64 `json:"confidence" db:"confidence"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User is an account whose mailbox can be ingested.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
