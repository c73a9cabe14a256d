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

type storeRepo struct{}

// NewStoreRepository returns a pgx-backed StoreRepository.
func NewStoreRepository() StoreRepository {
	return &storeRepo{}
}

func (r *storeRepo) Create(ctx context.Context, db DBTX, s *domain.Store) error {
	row := db.QueryRow(ctx, `
		INSERT INTO stores (id, owner_id, name, subdomain, minimum_markup, maximum_markup)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		s.ID, s.OwnerID, s.Name, s.Subdomain,
		infra.DecimalToNumeric(s.MinimumMarkup), infra.DecimalToNumeric(s.MaximumMarkup))
	if err := row.Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

func (r *storeRepo) FindByOwner(ctx context.Context, db DBTX, ownerID uuid.UUID) (*domain.Store, error) {
	var s domain.Store
	var minNum, maxNum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT id, owner_id, name, subdomain, minimum_markup, maximum_markup, created_at
		FROM stores WHERE owner_id = $1`, ownerID).
		Scan(&s.ID, &s.OwnerID, &s.Name, &s.Subdomain, &minNum, &maxNum, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan store: %w", err)
	}
	if s.MinimumMarkup, err = infra.NumericToDecimal(minNum); err != nil {
		return nil, fmt.Errorf("convert minimum_markup: %w", err)
	}
	if s.MaximumMarkup, err = infra.NumericToDecimal(maxNum); err != nil {
		return nil, fmt.Errorf("convert maximum_markup: %w", err)
	}
	return &s, nil
}

func (r *storeRepo) SubdomainTaken(ctx context.Context, db DBTX, subdomain string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stores WHERE subdomain = $1)`, subdomain).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subdomain: %w", err)
	}
	return exists, nil
}

func (r *storeRepo) GetMarkup(ctx context.Context, db DBTX, resellerID, productID uuid.UUID) (*domain.ResellerProduct, error) {
	rp := domain.ResellerProduct{ResellerID: resellerID, ProductID: productID}
	var markupNum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT markup, updated_at FROM reseller_products
		WHERE reseller_id = $1 AND product_id = $2`, resellerID, productID).
		Scan(&markupNum, &rp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan reseller product: %w", err)
	}
	if rp.Markup, err = infra.NumericToDecimal(markupNum); err != nil {
		return nil, fmt.Errorf("convert markup: %w", err)
	}
	return &rp, nil
}

func (r *storeRepo) UpsertMarkup(ctx context.Context, db DBTX, rp *domain.ResellerProduct) error {
	err := db.QueryRow(ctx, `
		INSERT INTO reseller_products (reseller_id, product_id, markup)
		VALUES ($1, $2, $3)
		ON CONFLICT (reseller_id, product_id) DO UPDATE SET markup = EXCLUDED.markup, updated_at = now()
		RETURNING updated_at`,
		rp.ResellerID, rp.ProductID, infra.DecimalToNumeric(rp.Markup)).Scan(&rp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert markup: %w", err)
	}
	return nil
}
