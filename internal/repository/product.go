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

type productRepo struct{}

// NewProductRepository returns a pgx-backed ProductRepository.
func NewProductRepository() ProductRepository {
	return &productRepo{}
}

func (r *productRepo) FindVariant(ctx context.Context, db DBTX, variantID uuid.UUID) (*domain.ProductVariant, error) {
	var v domain.ProductVariant
	var priceNum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT v.id, v.product_id, p.name, v.name, v.price
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.active`, variantID).
		Scan(&v.ID, &v.ProductID, &v.ProductName, &v.Name, &priceNum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan product variant: %w", err)
	}
	if v.Price, err = infra.NumericToDecimal(priceNum); err != nil {
		return nil, fmt.Errorf("convert variant price: %w", err)
	}
	return &v, nil
}

// Create inserts a product with its variants. The catalog is otherwise
// managed outside this service; this is used for seeding.
func (r *productRepo) Create(ctx context.Context, db DBTX, p *domain.Product) error {
	err := db.QueryRow(ctx, `
		INSERT INTO products (id, name, active) VALUES ($1, $2, $3)
		RETURNING created_at`, p.ID, p.Name, p.Active).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		v.ProductID = p.ID
		v.ProductName = p.Name
		_, err := db.Exec(ctx, `
			INSERT INTO product_variants (id, product_id, name, price) VALUES ($1, $2, $3, $4)`,
			v.ID, p.ID, v.Name, infra.DecimalToNumeric(v.Price))
		if err != nil {
			return fmt.Errorf("insert product variant: %w", err)
		}
	}
	return nil
}
