// internal/service/campaign_service.go
package service

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/model"
	"github.com/safarnama/backoffice/internal/queue"
	"github.com/safarnama/backoffice/internal/repository"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	CustomerRepo  repository.CustomerRepositoryInterface
	Queue         queue.Publisher
	Log           *zap.Logger
}

type CreateCampaignInput struct {
	Name             string            `json:"name"`
	TemplateName     string            `json:"template_name"`
	TemplateLanguage string            `json:"template_language"`
	TemplateVars     map[string]string `json:"template_vars"`
	Audience         string            `json:"audience"`
	RateLimit        int               `json:"rate_limit"`
	ScheduledFor     *string           `json:"scheduled_for"` // RFC 3339
}

type RecipientEntry struct {
	Phone      string            `json:"phone"`
	CustomerID *int              `json:"customer_id"`
	Variables  map[string]string `json:"variables"`
}

type AddRecipientsInput struct {
	Audience   string           `json:"audience"` // "all_customers" loads the customer table
	Recipients []RecipientEntry `json:"recipients"`
}

type AddRecipientsResult struct {
	Added           int `json:"added"`
	Skipped         int `json:"skipped"` // invalid phone or duplicate within the request
	TotalRecipients int `json:"total_recipients"`
}

// CreateCampaign persists a new campaign in draft (or scheduled, when a
// schedule is given). Template approval happens upstream and is not
// re-validated here; recipients are added separately.
func (s *CampaignService) CreateCampaign(input CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, appErrors.NewValidation("name", "must not be empty")
	}
	if strings.TrimSpace(input.TemplateName) == "" {
		return nil, appErrors.NewValidation("template_name", "must not be empty")
	}
	if input.RateLimit < 0 {
		return nil, appErrors.NewValidation("rate_limit", "must not be negative")
	}

	c := &model.Campaign{
		Name:             input.Name,
		TemplateName:     input.TemplateName,
		TemplateLanguage: input.TemplateLanguage,
		Audience:         input.Audience,
		RateLimit:        input.RateLimit,
		Status:           model.CampaignDraft,
	}
	if c.TemplateLanguage == "" {
		c.TemplateLanguage = "en"
	}
	if len(input.TemplateVars) > 0 {
		raw, err := json.Marshal(input.TemplateVars)
		if err != nil {
			return nil, appErrors.NewValidation("template_vars", "must be a flat string map")
		}
		c.TemplateVars = string(raw)
	}
	if input.ScheduledFor != nil {
		t, err := time.Parse(time.RFC3339, *input.ScheduledFor)
		if err != nil {
			return nil, appErrors.NewValidation("scheduled_for", "must be RFC 3339")
		}
		c.ScheduledFor = &t
		c.Status = model.CampaignScheduled
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddRecipients bulk-inserts targets into a draft/scheduled campaign.
// Invalid phone numbers are skipped, duplicates within the campaign are
// skipped by the store, and totalRecipients is recomputed afterwards.
func (s *CampaignService) AddRecipients(campaignID int, input AddRecipientsInput) (*AddRecipientsResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Editable() {
		return nil, appErrors.NewInvalidState(campaignID, campaign.Status, "add recipients to")
	}

	entries := input.Recipients
	if input.Audience == model.AudienceAllCustomers {
		customers, err := s.CustomerRepo.ListAll()
		if err != nil {
			return nil, err
		}
		entries = make([]RecipientEntry, 0, len(customers))
		for i := range customers {
			cust := customers[i]
			entries = append(entries, RecipientEntry{
				Phone:      cust.Phone,
				CustomerID: &cust.ID,
				Variables: map[string]string{
					"first_name": cust.FirstName,
					"last_name":  cust.LastName,
					"location":   cust.Location,
				},
			})
		}
	}
	if len(entries) == 0 {
		return nil, appErrors.NewValidation("recipients", "must not be empty")
	}

	skipped := 0
	seen := map[string]bool{}
	toInsert := make([]model.Recipient, 0, len(entries))
	for _, entry := range entries {
		phone, ok := NormalizePhone(entry.Phone)
		if !ok || seen[phone] {
			skipped++
			continue
		}
		seen[phone] = true

		rec := model.Recipient{Phone: phone, CustomerID: entry.CustomerID}
		if len(entry.Variables) > 0 {
			raw, err := json.Marshal(entry.Variables)
			if err == nil {
				rec.Variables = string(raw)
			}
		}
		toInsert = append(toInsert, rec)
	}
	if len(toInsert) == 0 {
		return nil, appErrors.NewValidation("recipients", "no valid phone numbers")
	}

	added, err := s.RecipientRepo.BulkInsert(campaignID, toInsert)
	if err != nil {
		return nil, err
	}
	skipped += len(toInsert) - added // duplicates already in the campaign

	if err := s.CampaignRepo.UpdateCounters(campaignID); err != nil {
		return nil, err
	}
	campaign, err = s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	return &AddRecipientsResult{
		Added:           added,
		Skipped:         skipped,
		TotalRecipients: campaign.TotalRecipients,
	}, nil
}

func (s *CampaignService) RemoveRecipients(campaignID int, ids []int) (int, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if !campaign.Editable() {
		return 0, appErrors.NewInvalidState(campaignID, campaign.Status, "remove recipients from")
	}
	if len(ids) == 0 {
		return 0, appErrors.NewValidation("ids", "must not be empty")
	}

	removed, err := s.RecipientRepo.DeleteByIDs(campaignID, ids)
	if err != nil {
		return 0, err
	}
	if err := s.CampaignRepo.UpdateCounters(campaignID); err != nil {
		return removed, err
	}
	return removed, nil
}

// Start transitions the campaign to sending and hands it to the worker. The
// conditional status update is the single-flight guard: of two concurrent
// starts exactly one wins and the loser sees AlreadyRunning. The status is
// persisted before the dispatch handoff, so a crash in between is recovered
// by the worker's stuck-campaign sweep.
func (s *CampaignService) Start(campaignID int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignSending {
		return nil, appErrors.NewAlreadyRunning(campaignID)
	}
	if !campaign.Editable() {
		return nil, appErrors.NewInvalidState(campaignID, campaign.Status, "start")
	}
	if campaign.TotalRecipients == 0 {
		return nil, appErrors.NewInvalidState(campaignID, campaign.Status, "start empty")
	}

	ok, err := s.CampaignRepo.MarkSending(campaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race with a concurrent start.
		return nil, appErrors.NewAlreadyRunning(campaignID)
	}

	s.publishDispatch(campaignID)
	return s.CampaignRepo.GetByID(campaignID)
}

// Pause signals the running loop to stop after its in-flight send.
func (s *CampaignService) Pause(campaignID int) error {
	ok, err := s.CampaignRepo.MarkPaused(campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return s.invalidState(campaignID, "pause")
	}
	return nil
}

// Resume puts a paused campaign back into sending and re-queues it for
// dispatch. Recipients keep their state, so the loop picks up where it left.
func (s *CampaignService) Resume(campaignID int) error {
	ok, err := s.CampaignRepo.MarkResumed(campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return s.invalidState(campaignID, "resume")
	}
	s.publishDispatch(campaignID)
	return nil
}

// Cancel terminates the campaign. The running loop observes the status at
// its next iteration boundary; remaining pending/retry recipients are simply
// never dispatched again.
func (s *CampaignService) Cancel(campaignID int) error {
	ok, err := s.CampaignRepo.MarkCancelled(campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return s.invalidState(campaignID, "cancel")
	}
	return nil
}

func (s *CampaignService) GetCampaign(id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(id)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	page, pageSize = clampPage(page, pageSize)
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	return campaigns, paginationEnvelope(page, pageSize, total), nil
}

func (s *CampaignService) ListRecipients(campaignID, page, pageSize int, status string) ([]model.Recipient, map[string]int, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, nil, err
	}
	page, pageSize = clampPage(page, pageSize)
	offset := (page - 1) * pageSize

	ptrs, total, err := s.RecipientRepo.ListRecipients(campaignID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	recipients := make([]model.Recipient, len(ptrs))
	for i, r := range ptrs {
		recipients[i] = *r
	}

	return recipients, paginationEnvelope(page, pageSize, total), nil
}

func (s *CampaignService) publishDispatch(campaignID int) {
	if err := s.Queue.PublishDispatch(campaignID); err != nil {
		// The sending status is already durable; the worker's stuck-campaign
		// sweep re-publishes it.
		s.Log.Warn("failed to publish dispatch job", zap.Int("campaign_id", campaignID), zap.Error(err))
	}
}

func (s *CampaignService) invalidState(campaignID int, op string) error {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	return appErrors.NewInvalidState(campaignID, campaign.Status, op)
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func paginationEnvelope(page, pageSize, total int) map[string]int {
	totalPages := (total + pageSize - 1) / pageSize
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
}

var phoneRe = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhone strips formatting characters and validates the result as
// E.164. A leading "00" is rewritten to "+".
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case ' ', '-', '(', ')', '.':
			continue
		}
		b.WriteRune(r)
	}
	phone := b.String()
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	if !phoneRe.MatchString(phone) {
		return "", false
	}
	return phone, true
}
