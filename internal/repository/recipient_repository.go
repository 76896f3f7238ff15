package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/safarnama/backoffice/internal/model"
)

type RecipientRepositoryInterface interface {
	// Membership (draft/scheduled only, enforced by the service layer)
	BulkInsert(campaignID int, recipients []model.Recipient) (int, error)
	DeleteByIDs(campaignID int, ids []int) (int, error)
	ListRecipients(campaignID, offset, limit int, status string) ([]*model.Recipient, int, error)
	GetByID(id int) (*model.Recipient, error)

	// Dispatch
	NextEligible(campaignID int, backoffBase time.Duration) (*model.Recipient, error)
	ClaimSending(id int) (bool, error)
	MarkSent(id int, providerMessageID string) error
	MarkRetry(id int, errorCode, errorMessage string) error
	MarkFailed(id int, errorCode, errorMessage string) error
	MarkOptedOut(id int) error
	CountByStatus(campaignID int) (map[string]int, error)

	// Webhooks
	FindByProviderMessageID(providerMessageID string) (*model.Recipient, error)
	FindLatestByPhone(phone string) (*model.Recipient, error)
	AdvanceDelivery(id int, target string, at time.Time) (bool, error)

	// Recovery
	ResetStaleSending(olderThan time.Duration) (int64, error)

	// Stats
	ErrorBreakdown(campaignID int) (map[string]int, error)
	RecentFailures(campaignID, limit int) ([]*model.Recipient, error)
	SendTimeline(campaignID int) ([]model.TimelineBucket, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, phone, customer_id, variables, status,
		provider_message_id, error_code, error_message, retry_count, last_retry_at,
		sent_at, delivered_at, read_at, responded_at, failed_at, created_at, updated_at`

func scanRecipient(row interface{ Scan(...interface{}) error }) (*model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.Phone, &rec.CustomerID, &rec.Variables, &rec.Status,
		&rec.ProviderMessageID, &rec.ErrorCode, &rec.ErrorMessage, &rec.RetryCount, &rec.LastRetryAt,
		&rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.RespondedAt, &rec.FailedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ====================== Membership ======================

// BulkInsert adds recipients in pending status, silently skipping phone
// numbers already present in the campaign. Returns the number inserted.
func (r *RecipientRepository) BulkInsert(campaignID int, recipients []model.Recipient) (int, error) {
	inserted := 0
	query := `
		INSERT INTO recipients (campaign_id, phone, customer_id, variables, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		ON CONFLICT (campaign_id, phone) DO NOTHING
	`
	for _, rec := range recipients {
		res, err := r.DB.Exec(query, campaignID, rec.Phone, rec.CustomerID, rec.Variables)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func (r *RecipientRepository) DeleteByIDs(campaignID int, ids []int) (int, error) {
	query := `DELETE FROM recipients WHERE campaign_id=$1 AND id = ANY($2)`
	res, err := r.DB.Exec(query, campaignID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *RecipientRepository) ListRecipients(campaignID, offset, limit int, status string) ([]*model.Recipient, int, error) {
	recipients := []*model.Recipient{}
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE campaign_id=$1`
	args := []interface{}{campaignID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, err
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM recipients WHERE campaign_id=$1`
	argsCount := []interface{}{campaignID}
	if status != "" {
		countQuery += " AND status=$2"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return recipients, total, nil
}

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ====================== Dispatch ======================

// NextEligible picks the earliest recipient that is pending, or in retry with
// its exponential backoff elapsed. The backoff for attempt n is
// backoffBase * 2^(n-1), anchored on last_retry_at.
func (r *RecipientRepository) NextEligible(campaignID int, backoffBase time.Duration) (*model.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + `
		FROM recipients
		WHERE campaign_id=$1
		  AND (
			status='pending'
			OR (status='retry' AND COALESCE(last_retry_at, created_at)
				+ (interval '1 second' * $2 * power(2, GREATEST(retry_count-1, 0))) <= NOW())
		  )
		ORDER BY COALESCE(last_retry_at, created_at) ASC, id ASC
		LIMIT 1
	`
	rec, err := scanRecipient(r.DB.QueryRow(query, campaignID, backoffBase.Seconds()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ClaimSending is the per-row lock: only one dispatcher iteration can move a
// recipient from pending/retry to sending.
func (r *RecipientRepository) ClaimSending(id int) (bool, error) {
	query := `
		UPDATE recipients SET status='sending', updated_at=NOW()
		WHERE id=$1 AND status IN ('pending', 'retry')
	`
	res, err := r.DB.Exec(query, id)
	return rowsAffected(res, err)
}

func (r *RecipientRepository) MarkSent(id int, providerMessageID string) error {
	query := `
		UPDATE recipients
		SET status='sent', provider_message_id=$2, error_code='', error_message='',
			sent_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='sending'
	`
	_, err := r.DB.Exec(query, id, providerMessageID)
	return err
}

func (r *RecipientRepository) MarkRetry(id int, errorCode, errorMessage string) error {
	query := `
		UPDATE recipients
		SET status='retry', error_code=$2, error_message=$3,
			retry_count=retry_count+1, last_retry_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='sending'
	`
	_, err := r.DB.Exec(query, id, errorCode, errorMessage)
	return err
}

func (r *RecipientRepository) MarkFailed(id int, errorCode, errorMessage string) error {
	query := `
		UPDATE recipients
		SET status='failed', error_code=$2, error_message=$3, failed_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='sending'
	`
	_, err := r.DB.Exec(query, id, errorCode, errorMessage)
	return err
}

func (r *RecipientRepository) MarkOptedOut(id int) error {
	query := `
		UPDATE recipients SET status='opted_out', updated_at=NOW()
		WHERE id=$1 AND status IN ('pending', 'retry', 'sending')
	`
	_, err := r.DB.Exec(query, id)
	return err
}

func (r *RecipientRepository) CountByStatus(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ====================== Webhooks ======================

func (r *RecipientRepository) FindByProviderMessageID(providerMessageID string) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE provider_message_id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, providerMessageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// FindLatestByPhone is the fallback lookup for webhook events that only carry
// a phone number: the most recently sent recipient for that number.
func (r *RecipientRepository) FindLatestByPhone(phone string) (*model.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + ` FROM recipients
		WHERE phone=$1 AND sent_at IS NOT NULL
		ORDER BY sent_at DESC LIMIT 1
	`
	rec, err := scanRecipient(r.DB.QueryRow(query, phone))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// AdvanceDelivery applies one receipt-driven transition. The status guard
// only lets the row move forward, so a duplicated webhook is a no-op: the
// second apply matches zero rows.
func (r *RecipientRepository) AdvanceDelivery(id int, target string, at time.Time) (bool, error) {
	var query string
	switch target {
	case model.RecipientDelivered:
		query = `UPDATE recipients SET status='delivered', delivered_at=COALESCE(delivered_at,$2), updated_at=NOW()
			WHERE id=$1 AND status='sent'`
	case model.RecipientRead:
		query = `UPDATE recipients SET status='read', read_at=COALESCE(read_at,$2),
			delivered_at=COALESCE(delivered_at,$2), updated_at=NOW()
			WHERE id=$1 AND status IN ('sent','delivered')`
	case model.RecipientResponded:
		query = `UPDATE recipients SET status='responded', responded_at=COALESCE(responded_at,$2),
			read_at=COALESCE(read_at,$2), delivered_at=COALESCE(delivered_at,$2), updated_at=NOW()
			WHERE id=$1 AND status IN ('sent','delivered','read')`
	default:
		return false, fmt.Errorf("cannot advance recipient to status %q", target)
	}
	res, err := r.DB.Exec(query, id, at)
	return rowsAffected(res, err)
}

// ====================== Recovery ======================

// ResetStaleSending re-queues recipients abandoned mid-send by a crashed
// worker. At-least-once: a duplicate send is preferred over a lost one.
func (r *RecipientRepository) ResetStaleSending(olderThan time.Duration) (int64, error) {
	query := `
		UPDATE recipients SET status='retry', last_retry_at=NOW(), updated_at=NOW()
		WHERE status='sending' AND updated_at < NOW() - (interval '1 second' * $1)
	`
	res, err := r.DB.Exec(query, int(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ====================== Stats ======================

func (r *RecipientRepository) ErrorBreakdown(campaignID int) (map[string]int, error) {
	query := `
		SELECT COALESCE(NULLIF(error_code, ''), 'unknown_error'), COUNT(*)
		FROM recipients WHERE campaign_id=$1 AND status='failed'
		GROUP BY 1
	`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breakdown := map[string]int{}
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, err
		}
		breakdown[code] = count
	}
	return breakdown, rows.Err()
}

func (r *RecipientRepository) RecentFailures(campaignID, limit int) ([]*model.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + ` FROM recipients
		WHERE campaign_id=$1 AND status='failed'
		ORDER BY failed_at DESC NULLS LAST LIMIT $2
	`
	rows, err := r.DB.Query(query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := []*model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, rec)
	}
	return failures, rows.Err()
}

func (r *RecipientRepository) SendTimeline(campaignID int) ([]model.TimelineBucket, error) {
	query := `
		SELECT date_trunc('hour', sent_at) AS bucket, COUNT(*)
		FROM recipients
		WHERE campaign_id=$1 AND sent_at IS NOT NULL
		GROUP BY bucket ORDER BY bucket ASC
	`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	timeline := []model.TimelineBucket{}
	for rows.Next() {
		var b model.TimelineBucket
		if err := rows.Scan(&b.Hour, &b.Sent); err != nil {
			return nil, err
		}
		timeline = append(timeline, b)
	}
	return timeline, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
