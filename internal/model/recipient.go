// internal/model/recipient.go
package model

import "time"

// Recipient statuses. pending/retry are waiting states, sending is in-flight,
// sent/delivered/read/responded advance via gateway receipts, failed/opted_out
// are terminal.
const (
	RecipientPending   = "pending"
	RecipientSending   = "sending"
	RecipientSent      = "sent"
	RecipientDelivered = "delivered"
	RecipientRead      = "read"
	RecipientResponded = "responded"
	RecipientRetry     = "retry"
	RecipientFailed    = "failed"
	RecipientOptedOut  = "opted_out"
)

type Recipient struct {
	ID                int        `db:"id" json:"id"`
	CampaignID        int        `db:"campaign_id" json:"campaign_id"`
	Phone             string     `db:"phone" json:"phone"` // E.164
	CustomerID        *int       `db:"customer_id" json:"customer_id,omitempty"`
	Variables         string     `db:"variables" json:"variables,omitempty"` // JSON object, overrides campaign defaults
	Status            string     `db:"status" json:"status"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ErrorCode         string     `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage      string     `db:"error_message" json:"error_message,omitempty"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	LastRetryAt       *time.Time `db:"last_retry_at" json:"last_retry_at,omitempty"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
	RespondedAt       *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// DeliveryRank orders the receipt-driven statuses so that webhook events only
// ever move a recipient forward. Statuses outside the sent chain rank 0.
func DeliveryRank(status string) int {
	switch status {
	case RecipientSent:
		return 1
	case RecipientDelivered:
		return 2
	case RecipientRead:
		return 3
	case RecipientResponded:
		return 4
	}
	return 0
}
