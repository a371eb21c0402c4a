package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes a visible notice from a haptic pulse
type Kind string

const (
	KindNotify  Kind = "NOTIFY"
	KindVibrate Kind = "VIBRATE"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusQueued   Status = "QUEUED"
	StatusSending  Status = "SENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusRetrying Status = "RETRYING"
	StatusExpired  Status = "EXPIRED"
)

// PushNotification is the record carried on the notification topic
type PushNotification struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	Priority Priority  `json:"priority"`
	Channel  string    `json:"channel"`

	Title              string                 `json:"title,omitempty"`
	Body               string                 `json:"body,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	RequireInteraction bool                   `json:"require_interaction,omitempty"`
	Pattern            []int                  `json:"pattern,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Status     Status     `json:"status"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	LastError  *string    `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

type NotificationBuilder struct {
	notification *PushNotification
}

func NewNotificationBuilder(kind Kind, channel string) *NotificationBuilder {
	now := time.Now()
	return &NotificationBuilder{
		notification: &PushNotification{
			ID:         uuid.New(),
			Kind:       kind,
			Priority:   PriorityMedium,
			Channel:    channel,
			Status:     StatusPending,
			MaxRetries: 3,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}

func (nb *NotificationBuilder) WithContent(title, body string) *NotificationBuilder {
	nb.notification.Title = title
	nb.notification.Body = body
	return nb
}

func (nb *NotificationBuilder) WithOptions(opts Options) *NotificationBuilder {
	nb.notification.Tag = opts.Tag
	nb.notification.RequireInteraction = opts.RequireInteraction
	if opts.Priority != "" {
		nb.notification.Priority = opts.Priority
	}
	if len(opts.Data) > 0 {
		nb.notification.Data = opts.Data
	}
	if opts.TTL > 0 {
		expiresAt := nb.notification.CreatedAt.Add(opts.TTL)
		nb.notification.ExpiresAt = &expiresAt
	}
	return nb
}

func (nb *NotificationBuilder) WithPattern(pattern []int) *NotificationBuilder {
	nb.notification.Pattern = append([]int(nil), pattern...)
	return nb
}

func (nb *NotificationBuilder) WithMaxRetries(maxRetries int) *NotificationBuilder {
	nb.notification.MaxRetries = maxRetries
	return nb
}

func (nb *NotificationBuilder) Build() *PushNotification {
	return nb.notification
}

// Channel names

func PatronChannel(entryID uuid.UUID) string {
	return fmt.Sprintf("patron-%s", entryID)
}

func VenueChannel(venueID uuid.UUID) string {
	return fmt.Sprintf("venue-%s", venueID)
}

func KitchenChannel(venueID uuid.UUID) string {
	return fmt.Sprintf("kitchen-%s", venueID)
}

// Utility methods

// GetPartitionKey keeps every notice for one channel on one partition so
// they are delivered in order
func (pn *PushNotification) GetPartitionKey() string {
	return pn.Channel
}

func (pn *PushNotification) ToJSON() ([]byte, error) {
	return json.Marshal(pn)
}

// Payload is the message body handed to the push transport
func (pn *PushNotification) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"id":   pn.ID.String(),
		"kind": string(pn.Kind),
	}
	switch pn.Kind {
	case KindVibrate:
		payload["pattern"] = pn.Pattern
	default:
		payload["title"] = pn.Title
		payload["body"] = pn.Body
		payload["priority"] = string(pn.Priority)
		if pn.Tag != "" {
			payload["tag"] = pn.Tag
		}
		if pn.RequireInteraction {
			payload["require_interaction"] = true
		}
		if len(pn.Data) > 0 {
			payload["data"] = pn.Data
		}
	}
	return payload
}

func (pn *PushNotification) IsExpired() bool {
	return pn.ExpiresAt != nil && time.Now().After(*pn.ExpiresAt)
}

func (pn *PushNotification) ShouldRetry() bool {
	return pn.RetryCount < pn.MaxRetries &&
		pn.Status == StatusFailed &&
		!pn.IsExpired()
}

func (pn *PushNotification) MarkSent() {
	now := time.Now()
	pn.Status = StatusSent
	pn.SentAt = &now
	pn.UpdatedAt = now
}

func (pn *PushNotification) MarkFailed(err error) {
	pn.Status = StatusFailed
	pn.UpdatedAt = time.Now()

	errorStr := err.Error()
	pn.LastError = &errorStr
}

func (pn *PushNotification) IncrementRetry() {
	pn.RetryCount++
	pn.UpdatedAt = time.Now()
	if pn.ShouldRetry() {
		pn.Status = StatusRetrying
	} else {
		pn.Status = StatusExpired
	}
}
