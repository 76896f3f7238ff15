package service

import (
	"time"

	"github.com/safarnama/backoffice/internal/model"
)

// Stub repositories with overridable behavior per test. Unset methods return
// zero values.

type stubCampaignRepo struct {
	CreateFn         func(c *model.Campaign) error
	GetByIDFn        func(id int) (*model.Campaign, error)
	ListCampaignsFn  func(offset, limit int, status string) ([]*model.Campaign, int, error)
	MarkSendingFn    func(campaignID int) (bool, error)
	MarkPausedFn     func(campaignID int) (bool, error)
	MarkResumedFn    func(campaignID int) (bool, error)
	MarkCancelledFn  func(campaignID int) (bool, error)
	FinalizeFn       func(campaignID int, status string) (bool, error)
	UpdateCountersFn func(campaignID int) error
	ListDueFn        func(now time.Time) ([]int, error)
	ListStuckFn      func(olderThan time.Duration) ([]int, error)
	counterRefreshed int
}

func (s *stubCampaignRepo) Create(c *model.Campaign) error {
	if s.CreateFn != nil {
		return s.CreateFn(c)
	}
	c.ID = 1
	return nil
}

func (s *stubCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(id)
	}
	return &model.Campaign{ID: id, Status: model.CampaignDraft}, nil
}

func (s *stubCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	if s.ListCampaignsFn != nil {
		return s.ListCampaignsFn(offset, limit, status)
	}
	return nil, 0, nil
}

func (s *stubCampaignRepo) MarkSending(campaignID int) (bool, error) {
	if s.MarkSendingFn != nil {
		return s.MarkSendingFn(campaignID)
	}
	return true, nil
}

func (s *stubCampaignRepo) MarkPaused(campaignID int) (bool, error) {
	if s.MarkPausedFn != nil {
		return s.MarkPausedFn(campaignID)
	}
	return true, nil
}

func (s *stubCampaignRepo) MarkResumed(campaignID int) (bool, error) {
	if s.MarkResumedFn != nil {
		return s.MarkResumedFn(campaignID)
	}
	return true, nil
}

func (s *stubCampaignRepo) MarkCancelled(campaignID int) (bool, error) {
	if s.MarkCancelledFn != nil {
		return s.MarkCancelledFn(campaignID)
	}
	return true, nil
}

func (s *stubCampaignRepo) Finalize(campaignID int, status string) (bool, error) {
	if s.FinalizeFn != nil {
		return s.FinalizeFn(campaignID, status)
	}
	return true, nil
}

func (s *stubCampaignRepo) UpdateCounters(campaignID int) error {
	s.counterRefreshed++
	if s.UpdateCountersFn != nil {
		return s.UpdateCountersFn(campaignID)
	}
	return nil
}

func (s *stubCampaignRepo) ListDueScheduled(now time.Time) ([]int, error) {
	if s.ListDueFn != nil {
		return s.ListDueFn(now)
	}
	return nil, nil
}

func (s *stubCampaignRepo) ListStuckSending(olderThan time.Duration) ([]int, error) {
	if s.ListStuckFn != nil {
		return s.ListStuckFn(olderThan)
	}
	return nil, nil
}

type stubRecipientRepo struct {
	BulkInsertFn      func(campaignID int, recipients []model.Recipient) (int, error)
	DeleteByIDsFn     func(campaignID int, ids []int) (int, error)
	ListRecipientsFn  func(campaignID, offset, limit int, status string) ([]*model.Recipient, int, error)
	GetByIDFn         func(id int) (*model.Recipient, error)
	NextEligibleFn    func(campaignID int, backoffBase time.Duration) (*model.Recipient, error)
	ClaimSendingFn    func(id int) (bool, error)
	MarkSentFn        func(id int, providerMessageID string) error
	MarkRetryFn       func(id int, errorCode, errorMessage string) error
	MarkFailedFn      func(id int, errorCode, errorMessage string) error
	MarkOptedOutFn    func(id int) error
	CountByStatusFn   func(campaignID int) (map[string]int, error)
	FindByProviderFn  func(providerMessageID string) (*model.Recipient, error)
	FindByPhoneFn     func(phone string) (*model.Recipient, error)
	AdvanceDeliveryFn func(id int, target string, at time.Time) (bool, error)
	ResetStaleFn      func(olderThan time.Duration) (int64, error)
	ErrorBreakdownFn  func(campaignID int) (map[string]int, error)
	RecentFailuresFn  func(campaignID, limit int) ([]*model.Recipient, error)
	SendTimelineFn    func(campaignID int) ([]model.TimelineBucket, error)
}

func (s *stubRecipientRepo) BulkInsert(campaignID int, recipients []model.Recipient) (int, error) {
	if s.BulkInsertFn != nil {
		return s.BulkInsertFn(campaignID, recipients)
	}
	return len(recipients), nil
}

func (s *stubRecipientRepo) DeleteByIDs(campaignID int, ids []int) (int, error) {
	if s.DeleteByIDsFn != nil {
		return s.DeleteByIDsFn(campaignID, ids)
	}
	return len(ids), nil
}

func (s *stubRecipientRepo) ListRecipients(campaignID, offset, limit int, status string) ([]*model.Recipient, int, error) {
	if s.ListRecipientsFn != nil {
		return s.ListRecipientsFn(campaignID, offset, limit, status)
	}
	return nil, 0, nil
}

func (s *stubRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(id)
	}
	return nil, nil
}

func (s *stubRecipientRepo) NextEligible(campaignID int, backoffBase time.Duration) (*model.Recipient, error) {
	if s.NextEligibleFn != nil {
		return s.NextEligibleFn(campaignID, backoffBase)
	}
	return nil, nil
}

func (s *stubRecipientRepo) ClaimSending(id int) (bool, error) {
	if s.ClaimSendingFn != nil {
		return s.ClaimSendingFn(id)
	}
	return true, nil
}

func (s *stubRecipientRepo) MarkSent(id int, providerMessageID string) error {
	if s.MarkSentFn != nil {
		return s.MarkSentFn(id, providerMessageID)
	}
	return nil
}

func (s *stubRecipientRepo) MarkRetry(id int, errorCode, errorMessage string) error {
	if s.MarkRetryFn != nil {
		return s.MarkRetryFn(id, errorCode, errorMessage)
	}
	return nil
}

func (s *stubRecipientRepo) MarkFailed(id int, errorCode, errorMessage string) error {
	if s.MarkFailedFn != nil {
		return s.MarkFailedFn(id, errorCode, errorMessage)
	}
	return nil
}

func (s *stubRecipientRepo) MarkOptedOut(id int) error {
	if s.MarkOptedOutFn != nil {
		return s.MarkOptedOutFn(id)
	}
	return nil
}

func (s *stubRecipientRepo) CountByStatus(campaignID int) (map[string]int, error) {
	if s.CountByStatusFn != nil {
		return s.CountByStatusFn(campaignID)
	}
	return map[string]int{}, nil
}

func (s *stubRecipientRepo) FindByProviderMessageID(providerMessageID string) (*model.Recipient, error) {
	if s.FindByProviderFn != nil {
		return s.FindByProviderFn(providerMessageID)
	}
	return nil, nil
}

func (s *stubRecipientRepo) FindLatestByPhone(phone string) (*model.Recipient, error) {
	if s.FindByPhoneFn != nil {
		return s.FindByPhoneFn(phone)
	}
	return nil, nil
}

func (s *stubRecipientRepo) AdvanceDelivery(id int, target string, at time.Time) (bool, error) {
	if s.AdvanceDeliveryFn != nil {
		return s.AdvanceDeliveryFn(id, target, at)
	}
	return true, nil
}

func (s *stubRecipientRepo) ResetStaleSending(olderThan time.Duration) (int64, error) {
	if s.ResetStaleFn != nil {
		return s.ResetStaleFn(olderThan)
	}
	return 0, nil
}

func (s *stubRecipientRepo) ErrorBreakdown(campaignID int) (map[string]int, error) {
	if s.ErrorBreakdownFn != nil {
		return s.ErrorBreakdownFn(campaignID)
	}
	return map[string]int{}, nil
}

func (s *stubRecipientRepo) RecentFailures(campaignID, limit int) ([]*model.Recipient, error) {
	if s.RecentFailuresFn != nil {
		return s.RecentFailuresFn(campaignID, limit)
	}
	return nil, nil
}

func (s *stubRecipientRepo) SendTimeline(campaignID int) ([]model.TimelineBucket, error) {
	if s.SendTimelineFn != nil {
		return s.SendTimelineFn(campaignID)
	}
	return nil, nil
}

type stubCustomerRepo struct {
	GetByIDFn    func(id int) (*model.Customer, error)
	ListAllFn    func() ([]model.Customer, error)
	IsOptedOutFn func(phone string) (bool, error)
}

func (s *stubCustomerRepo) GetByID(id int) (*model.Customer, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(id)
	}
	return nil, nil
}

func (s *stubCustomerRepo) ListAll() ([]model.Customer, error) {
	if s.ListAllFn != nil {
		return s.ListAllFn()
	}
	return nil, nil
}

func (s *stubCustomerRepo) IsOptedOut(phone string) (bool, error) {
	if s.IsOptedOutFn != nil {
		return s.IsOptedOutFn(phone)
	}
	return false, nil
}

// recordingQueue captures dispatch jobs published by the service.
type recordingQueue struct {
	published []int
	err       error
}

func (q *recordingQueue) PublishDispatch(campaignID int) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, campaignID)
	return nil
}
