package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError rejects a malformed request before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError rejects an operation not allowed in the campaign's
// current status. No partial effect.
type InvalidStateError struct {
	CampaignID int
	Status     string
	Op         string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %d in status %q", e.Op, e.CampaignID, e.Status)
}

func NewInvalidState(campaignID int, status, op string) error {
	return &InvalidStateError{CampaignID: campaignID, Status: status, Op: op}
}

// ErrAlreadyRunning means a dispatch loop is already active for the campaign.
type ErrAlreadyRunning struct {
	CampaignID int
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("campaign %d is already sending", e.CampaignID)
}

func NewAlreadyRunning(id int) error {
	return &ErrAlreadyRunning{CampaignID: id}
}
