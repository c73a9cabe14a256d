package service

import (
	"context"
	"log/slog"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ResellerService handles reseller storefront settings.
type ResellerService struct {
	pool   *pgxpool.Pool
	stores repository.StoreRepository
	logger *slog.Logger
}

// NewResellerService creates a ResellerService.
func NewResellerService(pool *pgxpool.Pool, stores repository.StoreRepository, logger *slog.Logger) *ResellerService {
	return &ResellerService{pool: pool, stores: stores, logger: logger}
}

// GetStore returns the reseller's store.
func (s *ResellerService) GetStore(ctx context.Context, resellerID uuid.UUID) (*domain.Store, error) {
	store, err := s.stores.FindByOwner(ctx, s.pool, resellerID)
	if err != nil {
		return nil, domain.ErrInternal("find store", err)
	}
	if store == nil {
		return nil, domain.ErrNotFound("store for reseller", resellerID.String())
	}
	return store, nil
}

// SetMarkup stores the reseller's markup percentage for a product. The
// value must lie within the store's bounds.
func (s *ResellerService) SetMarkup(ctx context.Context, resellerID, productID uuid.UUID, markup decimal.Decimal) (*domain.ResellerProduct, error) {
	if markup.IsNegative() {
		return nil, domain.ErrValidation("markup must not be negative")
	}
	store, err := s.GetStore(ctx, resellerID)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateMarkup(markup); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	rp := &domain.ResellerProduct{ResellerID: resellerID, ProductID: productID, Markup: markup}
	if err := s.stores.UpsertMarkup(ctx, s.pool, rp); err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.ErrNotFound("product", productID.String())
		}
		return nil, domain.ErrInternal("save markup", err)
	}
	s.logger.Info("reseller markup set", "reseller_id", resellerID, "product_id", productID, "markup", markup)
	return rp, nil
}
