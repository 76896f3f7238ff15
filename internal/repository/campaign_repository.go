package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)

	// Lifecycle transitions. All are conditional updates on the current
	// status; the bool result reports whether the transition won.
	MarkSending(campaignID int) (bool, error)
	MarkPaused(campaignID int) (bool, error)
	MarkResumed(campaignID int) (bool, error)
	MarkCancelled(campaignID int) (bool, error)
	Finalize(campaignID int, status string) (bool, error)

	// Counters
	UpdateCounters(campaignID int) error

	// Worker support
	ListDueScheduled(now time.Time) ([]int, error)
	ListStuckSending(olderThan time.Duration) ([]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, template_name, template_language, template_vars, audience,
		rate_limit, status, total_recipients, sent_count, delivered_count, read_count,
		failed_count, scheduled_for, started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.TemplateName, &c.TemplateLanguage, &c.TemplateVars, &c.Audience,
		&c.RateLimit, &c.Status, &c.TotalRecipients, &c.SentCount, &c.DeliveredCount, &c.ReadCount,
		&c.FailedCount, &c.ScheduledFor, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Audience == "" {
		c.Audience = model.AudienceManual
	}
	query := `
		INSERT INTO campaigns (name, template_name, template_language, template_vars, audience,
			rate_limit, status, scheduled_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return r.DB.QueryRow(query,
		c.Name, c.TemplateName, c.TemplateLanguage, c.TemplateVars, c.Audience,
		c.RateLimit, c.Status, c.ScheduledFor, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== Lifecycle transitions ======================
//
// start/pause/cancel race through the status column itself: the conditional
// UPDATE is the lock acquire, and rows-affected tells the caller whether it
// won. Works across process instances without any in-memory mutex.

func (r *CampaignRepository) MarkSending(campaignID int) (bool, error) {
	query := `
		UPDATE campaigns
		SET status=$1, started_at=NOW(), updated_at=NOW()
		WHERE id=$2 AND status IN ($3, $4) AND total_recipients > 0
	`
	res, err := r.DB.Exec(query, model.CampaignSending, campaignID, model.CampaignDraft, model.CampaignScheduled)
	return rowsAffected(res, err)
}

func (r *CampaignRepository) MarkPaused(campaignID int) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, model.CampaignPaused, campaignID, model.CampaignSending)
	return rowsAffected(res, err)
}

func (r *CampaignRepository) MarkResumed(campaignID int) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, model.CampaignSending, campaignID, model.CampaignPaused)
	return rowsAffected(res, err)
}

func (r *CampaignRepository) MarkCancelled(campaignID int) (bool, error) {
	query := `
		UPDATE campaigns
		SET status=$1, completed_at=COALESCE(completed_at, NOW()), updated_at=NOW()
		WHERE id=$2 AND status IN ($3, $4, $5, $6)
	`
	res, err := r.DB.Exec(query, model.CampaignCancelled, campaignID,
		model.CampaignDraft, model.CampaignScheduled, model.CampaignSending, model.CampaignPaused)
	return rowsAffected(res, err)
}

// Finalize moves a sending campaign to completed or failed. completed_at is
// set exactly once.
func (r *CampaignRepository) Finalize(campaignID int, status string) (bool, error) {
	query := `
		UPDATE campaigns
		SET status=$1, completed_at=COALESCE(completed_at, NOW()), updated_at=NOW()
		WHERE id=$2 AND status=$3
	`
	res, err := r.DB.Exec(query, status, campaignID, model.CampaignSending)
	return rowsAffected(res, err)
}

// ====================== Counters ======================

// UpdateCounters recomputes the denormalized counts from the recipients
// table. sent/delivered/read are cumulative: a read message still counts as
// sent and delivered.
func (r *CampaignRepository) UpdateCounters(campaignID int) error {
	query := `
		UPDATE campaigns SET
			total_recipients = (SELECT COUNT(*) FROM recipients WHERE campaign_id=$1),
			sent_count       = (SELECT COUNT(*) FROM recipients WHERE campaign_id=$1 AND status IN ('sent','delivered','read','responded')),
			delivered_count  = (SELECT COUNT(*) FROM recipients WHERE campaign_id=$1 AND status IN ('delivered','read','responded')),
			read_count       = (SELECT COUNT(*) FROM recipients WHERE campaign_id=$1 AND status IN ('read','responded')),
			failed_count     = (SELECT COUNT(*) FROM recipients WHERE campaign_id=$1 AND status='failed'),
			updated_at       = NOW()
		WHERE id=$1
	`
	_, err := r.DB.Exec(query, campaignID)
	return err
}

// ====================== Worker support ======================

func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]int, error) {
	query := `SELECT id FROM campaigns WHERE status=$1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2`
	return r.listIDs(query, model.CampaignScheduled, now)
}

// ListStuckSending finds campaigns marked sending whose loop has gone quiet
// (updated_at is touched by every counter refresh). Used for crash recovery.
func (r *CampaignRepository) ListStuckSending(olderThan time.Duration) ([]int, error) {
	query := `SELECT id FROM campaigns WHERE status=$1 AND updated_at < NOW() - (interval '1 second' * $2)`
	return r.listIDs(query, model.CampaignSending, int(olderThan.Seconds()))
}

func (r *CampaignRepository) listIDs(query string, args ...interface{}) ([]int, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func rowsAffected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
