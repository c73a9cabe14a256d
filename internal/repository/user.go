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
	"github.com/shopspring/decimal"
)

const userColumns = `id, email, name, phone, password_hash, role, status,
		       wallet_balance, wallet_currency, created_at, updated_at`

type userRepo struct{}

// NewUserRepository returns a pgx-backed UserRepository.
func NewUserRepository() UserRepository {
	return &userRepo{}
}

func (r *userRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error) {
	row := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepo) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.User, error) {
	row := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (r *userRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanUser(row)
}

func (r *userRepo) Create(ctx context.Context, db DBTX, u *domain.User) error {
	row := db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, phone, password_hash, role, status, wallet_balance, wallet_currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash,
		string(u.Role), string(u.Status),
		infra.DecimalToNumeric(u.Wallet.Balance), u.Wallet.Currency,
	)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// AdjustBalance uses server-side arithmetic so the new balance never depends
// on a value read earlier by the application.
func (r *userRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta decimal.Decimal) (*domain.User, error) {
	row := tx.QueryRow(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, infra.DecimalToNumeric(delta))
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("adjust balance: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("adjust balance: user %s vanished", id)
	}
	return u, nil
}

func (r *userRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.UserStatus) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		UPDATE users SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, string(status))
	return scanUser(row)
}

func (r *userRepo) ListIDsByRole(ctx context.Context, db DBTX, role domain.Role) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, `SELECT id FROM users WHERE role = $1 AND status = 'active'`, string(role))
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var balNum pgtype.Numeric
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.Role, &u.Status,
		&balNum, &u.Wallet.Currency, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.Wallet.Balance, err = infra.NumericToDecimal(balNum)
	if err != nil {
		return nil, fmt.Errorf("convert wallet_balance: %w", err)
	}
	return &u, nil
}
