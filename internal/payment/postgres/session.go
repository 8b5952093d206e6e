package postgres

import (
	"time"

	"gorm.io/gorm"

	errors "github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	paymentpkg "github.com/fitmarket/payment-orchestration/internal/payment"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &SessionRepository{
		db: db,
	}
}

func (r *SessionRepository) Create(s *session.PaymentSession) error {
	return r.db.Create(s).Error
}

func (r *SessionRepository) GetByID(id string) (*session.PaymentSession, error) {
	var s session.PaymentSession
	err := r.db.Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) GetByGatewayInvoiceID(invoiceID string) (*session.PaymentSession, error) {
	var s session.PaymentSession
	err := r.db.Where("gateway_invoice_id = ?", invoiceID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ClaimInvoice writes the invoice id exactly once and advances the session
// to gateway_pending. The WHERE clause makes the claim conditional: a retry
// or a duplicate create response cannot overwrite an existing claim.
func (r *SessionRepository) ClaimInvoice(id, invoiceID string) error {
	res := r.db.Model(&session.PaymentSession{}).
		Where("id = ? AND status = ? AND gateway_invoice_id IS NULL", id, session.StatusCreated).
		Updates(map[string]interface{}{
			"gateway_invoice_id": invoiceID,
			"status":             session.StatusGatewayPending,
			"last_transition_at": time.Now().UTC(),
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrTransitionConflict
	}
	return nil
}

// TransitionTerminal conditionally settles a session. Only one caller can
// win: the row must still hold the expected non-terminal status. When
// appliedAt is set, applied_side_effect_at moves from null to non-null in
// the same statement, so the winner of the race is also the only applier.
func (r *SessionRepository) TransitionTerminal(id, from, to string, appliedAt *time.Time) error {
	if !session.IsTerminal(to) || session.IsTerminal(from) {
		return errors.NewInternalError("invalid terminal transition", nil)
	}

	updates := map[string]interface{}{
		"status":             to,
		"last_transition_at": time.Now().UTC(),
		"version":            gorm.Expr("version + 1"),
	}

	query := r.db.Model(&session.PaymentSession{}).
		Where("id = ? AND status = ?", id, from)

	if appliedAt != nil {
		updates["applied_side_effect_at"] = *appliedAt
		query = query.Where("applied_side_effect_at IS NULL")
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrTransitionConflict
	}
	return nil
}

func (r *SessionRepository) IncrementReconciliationAttempts(id string) error {
	return r.db.Model(&session.PaymentSession{}).
		Where("id = ?", id).
		UpdateColumn("reconciliation_attempts", gorm.Expr("reconciliation_attempts + 1")).Error
}

func (r *SessionRepository) ListByStatus(status string, offset, limit int) ([]*session.PaymentSession, error) {
	var sessions []*session.PaymentSession
	err := r.db.Where("status = ?", status).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) GetSessionStats() (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	err := r.db.Model(&session.PaymentSession{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(counts))
	for _, c := range counts {
		stats[c.Status] = c.Count
	}
	return stats, nil
}
