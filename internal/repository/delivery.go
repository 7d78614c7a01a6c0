package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/retailops/shopify-sync/internal/domain"
)

const deliveryColumns = `id, delivery_id, topic, shop_domain, status, payload_digest,
	payload, error_message, attempts, next_attempt_at, processing_time_ms,
	created_at, updated_at`

// Error messages longer than this are truncated before persisting.
const maxErrorLen = 2000

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Insert records a fresh delivery in the ledger. A redelivered webhook
// trips the unique constraint on delivery_id and surfaces as
// domain.ErrDuplicateDelivery; there is no prior existence check, so
// concurrent redeliveries cannot race past each other.
func (r *DeliveryRepository) Insert(ctx context.Context, d *domain.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (
			id, delivery_id, topic, shop_domain, status, payload_digest, payload,
			attempts, next_attempt_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.DeliveryID, d.Topic, d.ShopDomain, d.Status, d.PayloadDigest,
		d.Payload, d.Attempts, d.NextAttemptAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrDuplicateDelivery
		}
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due deliveries for processing.
// The claim increments attempts and moves the row to processing in one
// statement; SKIP LOCKED keeps concurrent workers off the same rows.
func (r *DeliveryRepository) ClaimDue(ctx context.Context, limit int) ([]domain.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE webhook_deliveries
		SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status = $2 AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deliveryColumns,
		domain.DeliveryStatusProcessing, domain.DeliveryStatusReceived, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimDue: scan: %w", err)
		}
		deliveries = append(deliveries, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimDue: rows: %w", err)
	}
	return deliveries, nil
}

// MarkOutcome records a terminal status plus the processing duration.
func (r *DeliveryRepository) MarkOutcome(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, errMsg string, elapsed time.Duration) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_deliveries
		SET status = $1, error_message = $2, processing_time_ms = $3, updated_at = now()
		WHERE id = $4`,
		status, truncate(errMsg, maxErrorLen), elapsed.Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("MarkOutcome: %w", err)
	}
	return requireRow(res, "MarkOutcome")
}

// Reschedule returns a delivery to the received state for a later retry.
func (r *DeliveryRepository) Reschedule(ctx context.Context, id uuid.UUID, nextAttempt time.Time, errMsg string, elapsed time.Duration) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_deliveries
		SET status = $1, error_message = $2, processing_time_ms = $3,
			next_attempt_at = $4, updated_at = now()
		WHERE id = $5`,
		domain.DeliveryStatusReceived, truncate(errMsg, maxErrorLen),
		elapsed.Milliseconds(), nextAttempt, id,
	)
	if err != nil {
		return fmt.Errorf("Reschedule: %w", err)
	}
	return requireRow(res, "Reschedule")
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func scanDelivery(s scanner) (*domain.WebhookDelivery, error) {
	var d domain.WebhookDelivery
	err := s.Scan(
		&d.ID, &d.DeliveryID, &d.Topic, &d.ShopDomain, &d.Status, &d.PayloadDigest,
		&d.Payload, &d.ErrorMessage, &d.Attempts, &d.NextAttemptAt,
		&d.ProcessingTimeMs, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
