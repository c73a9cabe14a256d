package service

import (
	"context"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxBulkOrders caps one bulk request.
const MaxBulkOrders = 200

// BulkProcess debits the aggregate cost of the reseller's pending orders
// among orderIDs once and moves them all to processing. The batch is all or
// nothing: if the balance cannot cover the aggregate no order changes.
func (s *OrderService) BulkProcess(ctx context.Context, resellerID uuid.UUID, orderIDs []uuid.UUID, rawAction string) (*domain.BulkResult, error) {
	if _, err := domain.ParseBulkAction(rawAction); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	ids := dedupe(orderIDs)
	if len(ids) == 0 {
		return nil, domain.ErrValidation("order_ids is required")
	}
	if len(ids) > MaxBulkOrders {
		return nil, domain.ErrValidation(fmt.Sprintf("at most %d orders per request", MaxBulkOrders))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	reseller, err := s.engine.LockUserForUpdate(ctx, tx, resellerID)
	if err != nil {
		return nil, internalErr("lock reseller", err)
	}
	orders, err := s.orders.LockResellerOrders(ctx, tx, resellerID, ids)
	if err != nil {
		return nil, domain.ErrInternal("lock orders", err)
	}

	result := &domain.BulkResult{Processed: []uuid.UUID{}, Skipped: []uuid.UUID{}, TotalCost: decimal.Zero}
	eligible := make([]domain.Order, 0, len(orders))
	found := make(map[uuid.UUID]bool, len(orders))
	for _, o := range orders {
		found[o.ID] = true
		if o.Status != domain.OrderPending {
			result.Skipped = append(result.Skipped, o.ID)
			continue
		}
		eligible = append(eligible, o)
		result.TotalCost = result.TotalCost.Add(o.Cost)
	}
	for _, id := range ids {
		if !found[id] {
			result.Skipped = append(result.Skipped, id)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrConflict("no pending orders")
	}

	if !domain.CanApply(reseller.Wallet.Balance, result.TotalCost.Neg()) {
		infra.InsufficientFundsTotal.Inc()
		return nil, domain.ErrInsufficientFunds()
	}

	if result.TotalCost.IsPositive() {
		desc := fmt.Sprintf("Bulk processing of %d orders", len(eligible))
		if _, err := s.engine.PostLedgerEntry(ctx, tx, domain.WalletDeltaParams{
			UserID:      resellerID,
			Delta:       result.TotalCost.Neg(),
			Description: desc,
			RelatedType: domain.RelatedBulkOrders,
		}); err != nil {
			return nil, internalErr("debit reseller", err)
		}
	}

	updated := make([]*domain.Order, 0, len(eligible))
	for _, o := range eligible {
		u, err := s.orders.UpdateStatus(ctx, tx, o.ID, domain.OrderProcessing, nil)
		if err != nil {
			return nil, domain.ErrInternal("update order", err)
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderProcessing, u)); err != nil {
			return nil, domain.ErrInternal("insert outbox event", err)
		}
		updated = append(updated, u)
		result.Processed = append(result.Processed, o.ID)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewBulkProcessedEvent(resellerID, result.Processed, result.TotalCost.StringFixed(2))); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	infra.OrdersProcessedTotal.WithLabelValues("bulk").Add(float64(len(result.Processed)))
	s.logger.Info("orders bulk processed", "reseller_id", resellerID, "processed", len(result.Processed),
		"skipped", len(result.Skipped), "total_cost", result.TotalCost)

	for _, o := range updated {
		s.notifyCustomer(ctx, o, "Order processing", fmt.Sprintf("Your order #%s is being processed", o.OrderNumber))
	}
	return result, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
