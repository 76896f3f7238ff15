// internal/service/stats_service.go
package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/safarnama/backoffice/internal/gateway"
	"github.com/safarnama/backoffice/internal/model"
	"github.com/safarnama/backoffice/internal/repository"
)

const recentFailureLimit = 10

// StatsService is the read-only aggregation over the recipient store. Safe
// to call at any campaign status, including while a campaign is sending.
type StatsService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
}

type ErrorBucket struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

type FailureSample struct {
	Phone        string     `json:"phone"`
	ErrorCode    string     `json:"error_code"`
	ErrorMessage string     `json:"error_message"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

type CampaignStats struct {
	CampaignID      int                    `json:"campaign_id"`
	Status          string                 `json:"status"`
	TotalRecipients int                    `json:"total_recipients"`
	StatusCounts    map[string]int         `json:"status_counts"`
	ErrorBreakdown  []ErrorBucket          `json:"error_breakdown"`
	DeliveryRate    string                 `json:"delivery_rate"`
	ReadRate        string                 `json:"read_rate"`
	ResponseRate    string                 `json:"response_rate"`
	FailureRate     string                 `json:"failure_rate"`
	Elapsed         string                 `json:"elapsed"`
	Timeline        []model.TimelineBucket `json:"timeline"`
	RecentFailures  []FailureSample        `json:"recent_failures"`
}

func (s *StatsService) GetStats(campaignID int) (*CampaignStats, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	counts, err := s.RecipientRepo.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	statusCounts := map[string]int{
		model.RecipientPending:   0,
		model.RecipientSending:   0,
		model.RecipientSent:      0,
		model.RecipientDelivered: 0,
		model.RecipientRead:      0,
		model.RecipientResponded: 0,
		model.RecipientRetry:     0,
		model.RecipientFailed:    0,
		model.RecipientOptedOut:  0,
	}
	total := 0
	for status, n := range counts {
		statusCounts[status] = n
		total += n
	}

	// Cumulative funnel: a responded message was also sent, delivered, read.
	responded := statusCounts[model.RecipientResponded]
	readPlus := statusCounts[model.RecipientRead] + responded
	deliveredPlus := statusCounts[model.RecipientDelivered] + readPlus
	sentPlus := statusCounts[model.RecipientSent] + deliveredPlus

	breakdownCounts, err := s.RecipientRepo.ErrorBreakdown(campaignID)
	if err != nil {
		return nil, err
	}
	breakdown := make([]ErrorBucket, 0, len(breakdownCounts))
	for code, n := range breakdownCounts {
		breakdown = append(breakdown, ErrorBucket{
			Code:        code,
			Description: gateway.Describe(code),
			Count:       n,
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].Code < breakdown[j].Code
	})

	timeline, err := s.RecipientRepo.SendTimeline(campaignID)
	if err != nil {
		return nil, err
	}

	failures, err := s.RecipientRepo.RecentFailures(campaignID, recentFailureLimit)
	if err != nil {
		return nil, err
	}
	samples := make([]FailureSample, 0, len(failures))
	for _, f := range failures {
		samples = append(samples, FailureSample{
			Phone:        f.Phone,
			ErrorCode:    f.ErrorCode,
			ErrorMessage: f.ErrorMessage,
			FailedAt:     f.FailedAt,
		})
	}

	return &CampaignStats{
		CampaignID:      campaignID,
		Status:          campaign.Status,
		TotalRecipients: total,
		StatusCounts:    statusCounts,
		ErrorBreakdown:  breakdown,
		DeliveryRate:    percent(deliveredPlus, sentPlus),
		ReadRate:        percent(readPlus, deliveredPlus),
		ResponseRate:    percent(responded, readPlus),
		FailureRate:     percent(statusCounts[model.RecipientFailed], total),
		Elapsed:         elapsed(campaign),
		Timeline:        timeline,
		RecentFailures:  samples,
	}, nil
}

// percent formats n/d with two decimals, guarding division by zero.
func percent(n, d int) string {
	if d == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", 100*float64(n)/float64(d))
}

func elapsed(c *model.Campaign) string {
	if c.StartedAt == nil {
		return "0s"
	}
	end := time.Now()
	if c.CompletedAt != nil {
		end = *c.CompletedAt
	}
	return end.Sub(*c.StartedAt).Truncate(time.Second).String()
}
