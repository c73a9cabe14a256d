package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, payment_id, order_id, user_id, amount, currency, status, transaction_id,
		       checkout_url, metadata, refund_reason, refunded_at, refunded_by, created_at, updated_at`

type paymentRepo struct{}

// NewPaymentRepository returns a pgx-backed PaymentRepository.
func NewPaymentRepository() PaymentRepository {
	return &paymentRepo{}
}

func (r *paymentRepo) Create(ctx context.Context, db DBTX, p *domain.Payment) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal payment metadata: %w", err)
	}
	row := db.QueryRow(ctx, `
		INSERT INTO payments (id, payment_id, order_id, user_id, amount, currency, status, checkout_url, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.PaymentID, p.OrderID, p.UserID,
		infra.DecimalToNumeric(p.Amount), p.Currency, string(p.Status),
		p.CheckoutURL, meta,
	)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByPaymentID(ctx context.Context, db DBTX, paymentID string) (*domain.Payment, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID)
	return scanPayment(row)
}

func (r *paymentRepo) LockByPaymentID(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1 FOR UPDATE`, paymentID)
	return scanPayment(row)
}

func (r *paymentRepo) LockRefundableByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE order_id = $1
		ORDER BY (status = 'completed') DESC, created_at DESC
		LIMIT 1
		FOR UPDATE`, orderID)
	return scanPayment(row)
}

func (r *paymentRepo) HasPendingForOrder(ctx context.Context, db DBTX, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'pending')`, orderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending payment: %w", err)
	}
	return exists, nil
}

func (r *paymentRepo) Finalize(ctx context.Context, db DBTX, p *domain.Payment) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal payment metadata: %w", err)
	}
	row := db.QueryRow(ctx, `
		UPDATE payments SET status = $2, transaction_id = COALESCE($3, transaction_id),
			order_id = COALESCE($4, order_id), metadata = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, string(p.Status), p.TransactionID, p.OrderID, meta)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		return fmt.Errorf("finalize payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, db DBTX, id uuid.UUID, reason string, by uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE payments SET status = 'refunded', refund_reason = $2, refunded_at = now(),
			refunded_by = $3, updated_at = now()
		WHERE id = $1`, id, reason, by)
	if err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	return nil
}

func (r *paymentRepo) InsertEvent(ctx context.Context, db DBTX, event *domain.PaymentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	raw := event.RawData
	if raw == nil {
		raw = json.RawMessage(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO payment_events (id, payment_id, status, message, actor_id, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.PaymentID, string(event.Status), event.Message, event.ActorID, raw)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

func (r *paymentRepo) ListEvents(ctx context.Context, db DBTX, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT id, payment_id, status, message, actor_id, raw_data, created_at
		FROM payment_events WHERE payment_id = $1
		ORDER BY created_at ASC`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query payment events: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var e domain.PaymentEvent
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Status, &e.Message, &e.ActorID, &e.RawData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanPayment(row scanner) (*domain.Payment, error) {
	var p domain.Payment
	var amountNum pgtype.Numeric
	var meta []byte
	err := row.Scan(
		&p.ID, &p.PaymentID, &p.OrderID, &p.UserID, &amountNum, &p.Currency, &p.Status,
		&p.TransactionID, &p.CheckoutURL, &meta,
		&p.RefundReason, &p.RefundedAt, &p.RefundedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Amount, err = infra.NumericToDecimal(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert payment amount: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode payment metadata: %w", err)
		}
	}
	return &p, nil
}
