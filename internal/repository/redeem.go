package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	codeColumns = `id, code, amount, status, created_by, used_by, used_at, expires_at, created_at`
	cardColumns = `id, amount, description, status, created_by, used_by, used_at, created_at`
)

type redeemRepo struct{}

// NewRedeemRepository returns a pgx-backed RedeemRepository.
func NewRedeemRepository() RedeemRepository {
	return &redeemRepo{}
}

// InsertCode relies on the unique index on code; a collision inserts nothing.
func (r *redeemRepo) InsertCode(ctx context.Context, db DBTX, c *domain.RedeemCode) (bool, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO redeem_codes (id, code, amount, status, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO NOTHING
		RETURNING created_at`,
		c.ID, c.Code, infra.DecimalToNumeric(c.Amount), string(c.Status), c.CreatedBy, c.ExpiresAt)
	err := row.Scan(&c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert redeem code: %w", err)
	}
	return true, nil
}

func (r *redeemRepo) FindCodeByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.RedeemCode, error) {
	row := db.QueryRow(ctx, `SELECT `+codeColumns+` FROM redeem_codes WHERE id = $1`, id)
	return scanCode(row)
}

func (r *redeemRepo) LockCodeByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.RedeemCode, error) {
	row := tx.QueryRow(ctx, `SELECT `+codeColumns+` FROM redeem_codes WHERE id = $1 FOR UPDATE`, id)
	return scanCode(row)
}

func (r *redeemRepo) LockCodeByCode(ctx context.Context, tx pgx.Tx, code string) (*domain.RedeemCode, error) {
	row := tx.QueryRow(ctx, `SELECT `+codeColumns+` FROM redeem_codes WHERE code = $1 FOR UPDATE`, code)
	return scanCode(row)
}

func (r *redeemRepo) MarkCodeUsed(ctx context.Context, db DBTX, id, userID uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE redeem_codes SET status = 'used', used_by = $2, used_at = now()
		WHERE id = $1 AND status = 'active'`, id, userID)
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("mark code used: code %s is no longer active", id)
	}
	return nil
}

func (r *redeemRepo) UpdateCodeStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.RedeemCodeStatus) error {
	_, err := db.Exec(ctx, `UPDATE redeem_codes SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update code status: %w", err)
	}
	return nil
}

func (r *redeemRepo) DeleteCode(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `DELETE FROM redeem_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

func (r *redeemRepo) ListCodes(ctx context.Context, db DBTX, status *domain.RedeemCodeStatus, page Page) ([]domain.RedeemCode, error) {
	page = page.normalize()
	var st *string
	if status != nil {
		s := string(*status)
		st = &s
	}
	rows, err := db.Query(ctx, `
		SELECT `+codeColumns+`
		FROM redeem_codes
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, st, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query redeem codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.RedeemCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

func (r *redeemRepo) InsertCard(ctx context.Context, db DBTX, c *domain.RedeemCard) error {
	row := db.QueryRow(ctx, `
		INSERT INTO redeem_cards (id, amount, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, infra.DecimalToNumeric(c.Amount), c.Description, string(c.Status), c.CreatedBy)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("insert redeem card: %w", err)
	}
	return nil
}

func (r *redeemRepo) FindCard(ctx context.Context, db DBTX, id uuid.UUID) (*domain.RedeemCard, error) {
	row := db.QueryRow(ctx, `SELECT `+cardColumns+` FROM redeem_cards WHERE id = $1`, id)
	return scanCard(row)
}

func (r *redeemRepo) LockCard(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.RedeemCard, error) {
	row := tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM redeem_cards WHERE id = $1 FOR UPDATE`, id)
	return scanCard(row)
}

func (r *redeemRepo) MarkCardUsed(ctx context.Context, db DBTX, id, userID uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE redeem_cards SET status = 'used', used_by = $2, used_at = now()
		WHERE id = $1 AND status = 'active'`, id, userID)
	if err != nil {
		return fmt.Errorf("mark card used: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("mark card used: card %s is no longer active", id)
	}
	return nil
}

func (r *redeemRepo) UpdateCardStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.RedeemCodeStatus) error {
	_, err := db.Exec(ctx, `UPDATE redeem_cards SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update card status: %w", err)
	}
	return nil
}

func (r *redeemRepo) DeleteCard(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `DELETE FROM redeem_cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

func (r *redeemRepo) ListCards(ctx context.Context, db DBTX, status *domain.RedeemCodeStatus) ([]domain.RedeemCard, error) {
	var st *string
	if status != nil {
		s := string(*status)
		st = &s
	}
	rows, err := db.Query(ctx, `
		SELECT `+cardColumns+`
		FROM redeem_cards
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY amount ASC, created_at ASC`, st)
	if err != nil {
		return nil, fmt.Errorf("query redeem cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.RedeemCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func scanCode(row scanner) (*domain.RedeemCode, error) {
	var c domain.RedeemCode
	var amountNum pgtype.Numeric
	err := row.Scan(&c.ID, &c.Code, &amountNum, &c.Status, &c.CreatedBy, &c.UsedBy, &c.UsedAt, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan redeem code: %w", err)
	}
	c.Amount, err = infra.NumericToDecimal(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert code amount: %w", err)
	}
	return &c, nil
}

func scanCard(row scanner) (*domain.RedeemCard, error) {
	var c domain.RedeemCard
	var amountNum pgtype.Numeric
	err := row.Scan(&c.ID, &amountNum, &c.Description, &c.Status, &c.CreatedBy, &c.UsedBy, &c.UsedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan redeem card: %w", err)
	}
	c.Amount, err = infra.NumericToDecimal(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert card amount: %w", err)
	}
	return &c, nil
}
