package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationQueued NotificationStatus = "queued"
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// EmailNotification письмо в очереди на отправку
type EmailNotification struct {
	ID          uuid.UUID          `json:"id"`
	RecipientID uuid.UUID          `json:"recipient_id"`
	Template    string             `json:"template"`
	Subject     string             `json:"subject"`
	Payload     map[string]any     `json:"payload"`
	Status      NotificationStatus `json:"status"`
	RetryCount  int                `json:"retry_count"`
	LastError   *string            `json:"last_error,omitempty"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
