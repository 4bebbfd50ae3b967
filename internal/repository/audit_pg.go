package repository

import (
	"context"
	"database/sql"
	"fmt"

	"printfarm-system/internal/domain"
)

// AuditPG persists the dispatch trail: one row per session plus one row per
// offer outcome. Writes are best-effort from the dispatcher's point of view —
// it logs failures and keeps driving.
type AuditPG struct {
	db *sql.DB
}

func NewAuditPG(db *sql.DB) *AuditPG {
	return &AuditPG{db: db}
}

func (a *AuditPG) SessionStarted(ctx context.Context, order domain.OrderDescriptor, candidateCount int) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO dispatch_sessions
		    (order_id, city, material_type, cost, creator_name, candidate_count, status, started_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, order.OrderID, order.City, order.MaterialType, order.Cost, order.CreatorName,
		candidateCount, string(domain.SessionOfferInFlight))
	if err != nil {
		return fmt.Errorf("failed to insert dispatch session: %w", err)
	}
	return nil
}

func (a *AuditPG) OfferOutcome(ctx context.Context, orderID, farmerID string, rank int, outcome domain.CandidateOutcome) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO offer_log (order_id, farmer_id, rank, outcome, recorded_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, orderID, farmerID, rank, string(outcome))
	if err != nil {
		return fmt.Errorf("failed to insert offer outcome: %w", err)
	}
	return nil
}

func (a *AuditPG) SessionFinished(ctx context.Context, orderID string, status domain.SessionStatus, acceptedBy string) error {
	var accepted any
	if acceptedBy != "" {
		accepted = acceptedBy
	}
	res, err := a.db.ExecContext(ctx, `
		UPDATE dispatch_sessions
		SET status = $2, accepted_by = $3, finished_at = NOW()
		WHERE order_id = $1 AND finished_at IS NULL
	`, orderID, string(status), accepted)
	if err != nil {
		return fmt.Errorf("failed to close dispatch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no open dispatch session row for order %s", orderID)
	}
	return nil
}

// FinishedSessions returns the most recent closed sessions for operator
// inspection, newest first.
func (a *AuditPG) FinishedSessions(ctx context.Context, limit int) ([]FinishedSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT order_id, status, COALESCE(accepted_by, ''), candidate_count, started_at, finished_at
		FROM dispatch_sessions
		WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query finished sessions: %w", err)
	}
	defer rows.Close()

	var out []FinishedSession
	for rows.Next() {
		var fs FinishedSession
		if err := rows.Scan(&fs.OrderID, &fs.Status, &fs.AcceptedBy, &fs.CandidateCount, &fs.StartedAt, &fs.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan finished session: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}
