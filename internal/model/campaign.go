// internal/model/campaign.go
package model

import "time"

// Campaign statuses
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
	CampaignCancelled = "cancelled"
)

// Audience selection modes
const (
	AudienceManual       = "manual"
	AudienceAllCustomers = "all_customers"
)

type Campaign struct {
	ID               int        `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	TemplateName     string     `db:"template_name" json:"template_name"`
	TemplateLanguage string     `db:"template_language" json:"template_language"`
	TemplateVars     string     `db:"template_vars" json:"template_vars,omitempty"` // JSON object, campaign-wide defaults
	Audience         string     `db:"audience" json:"audience"`
	RateLimit        int        `db:"rate_limit" json:"rate_limit"` // messages per minute, 0 = engine default
	Status           string     `db:"status" json:"status"`
	TotalRecipients  int        `db:"total_recipients" json:"total_recipients"`
	SentCount        int        `db:"sent_count" json:"sent_count"`
	DeliveredCount   int        `db:"delivered_count" json:"delivered_count"`
	ReadCount        int        `db:"read_count" json:"read_count"`
	FailedCount      int        `db:"failed_count" json:"failed_count"`
	ScheduledFor     *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// IsTerminal reports whether the campaign has reached a final status.
func (c *Campaign) IsTerminal() bool {
	switch c.Status {
	case CampaignCompleted, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}

// Editable reports whether recipients may still be added or removed.
func (c *Campaign) Editable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}
