package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/ledger"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	orderNumberSuffixLen = 6
	maxOrderItems        = 50
	maxOrderNumberTries  = 3
)

// OrderService owns the order lifecycle.
type OrderService struct {
	pool     *pgxpool.Pool
	orders   repository.OrderRepository
	users    repository.UserRepository
	stores   repository.StoreRepository
	products repository.ProductRepository
	payments repository.PaymentRepository
	redeem   repository.RedeemRepository
	outbox   repository.OutboxRepository
	engine   *ledger.Engine
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService creates an OrderService.
func NewOrderService(
	pool *pgxpool.Pool,
	orders repository.OrderRepository,
	users repository.UserRepository,
	stores repository.StoreRepository,
	products repository.ProductRepository,
	payments repository.PaymentRepository,
	redeem repository.RedeemRepository,
	outbox repository.OutboxRepository,
	engine *ledger.Engine,
	notifier Notifier,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		pool:     pool,
		orders:   orders,
		users:    users,
		stores:   stores,
		products: products,
		payments: payments,
		redeem:   redeem,
		outbox:   outbox,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckoutItem is one requested line.
type CheckoutItem struct {
	VariantID uuid.UUID       `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// CheckoutInput creates an order. ResellerID is nil for direct platform
// purchases.
type CheckoutInput struct {
	CustomerID uuid.UUID      `json:"-"`
	ResellerID *uuid.UUID     `json:"reseller_id,omitempty"`
	Items      []CheckoutItem `json:"items"`
}

// Validate checks the request shape before any lookup.
func (in *CheckoutInput) Validate() error {
	if len(in.Items) == 0 {
		return domain.ErrValidation("at least one item is required")
	}
	if len(in.Items) > maxOrderItems {
		return domain.ErrValidation(fmt.Sprintf("at most %d items per order", maxOrderItems))
	}
	for i, item := range in.Items {
		if item.VariantID == uuid.Nil {
			return domain.ErrValidation(fmt.Sprintf("item %d: variant_id is required", i))
		}
		if err := domain.ValidateQuantity(item.Quantity); err != nil {
			return domain.ErrValidation(fmt.Sprintf("item %d: %v", i, err))
		}
	}
	return nil
}

// CreateOrder prices the items from the catalog and inserts a pending,
// unpaid order. Reseller orders are priced with the reseller's markup;
// cost is always the wholesale sum.
func (s *OrderService) CreateOrder(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var store *domain.Store
	if in.ResellerID != nil {
		reseller, err := s.users.FindByID(ctx, s.pool, *in.ResellerID)
		if err != nil {
			return nil, domain.ErrInternal("find reseller", err)
		}
		if reseller == nil || reseller.Role != domain.RoleReseller || reseller.Status != domain.UserActive {
			return nil, domain.ErrNotFound("reseller", in.ResellerID.String())
		}
		store, err = s.stores.FindByOwner(ctx, s.pool, *in.ResellerID)
		if err != nil {
			return nil, domain.ErrInternal("find store", err)
		}
		if store == nil {
			return nil, domain.ErrNotFound("store for reseller", in.ResellerID.String())
		}
	}

	order := &domain.Order{
		ID:            uuid.New(),
		CustomerID:    in.CustomerID,
		ResellerID:    in.ResellerID,
		Status:        domain.OrderPending,
		PaymentStatus: domain.OrderUnpaid,
		Total:         decimal.Zero,
		Cost:          decimal.Zero,
	}
	for _, item := range in.Items {
		variant, err := s.products.FindVariant(ctx, s.pool, item.VariantID)
		if err != nil {
			return nil, domain.ErrInternal("find variant", err)
		}
		if variant == nil {
			return nil, domain.ErrNotFound("product variant", item.VariantID.String())
		}

		price := variant.Price
		if store != nil {
			markup, err := s.markupFor(ctx, store, variant.ProductID)
			if err != nil {
				return nil, err
			}
			price = domain.PriceWithMarkup(variant.Price, markup)
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		order.Total = order.Total.Add(price.Mul(qty))
		order.Cost = order.Cost.Add(variant.Price.Mul(qty))

		productID := variant.ProductID
		order.Items = append(order.Items, domain.OrderItem{
			ID:             uuid.New(),
			ProductID:      &productID,
			SubProductName: variant.ProductName + " - " + variant.Name,
			Quantity:       item.Quantity,
			Price:          price,
			Metadata:       item.Metadata,
		})
	}

	if err := s.insertOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "total", order.Total)
	return order, nil
}

// markupFor returns the reseller's stored markup for productID, or the
// store minimum when none is stored.
func (s *OrderService) markupFor(ctx context.Context, store *domain.Store, productID uuid.UUID) (decimal.Decimal, error) {
	rp, err := s.stores.GetMarkup(ctx, s.pool, store.OwnerID, productID)
	if err != nil {
		return decimal.Zero, domain.ErrInternal("get markup", err)
	}
	if rp == nil {
		return store.MinimumMarkup, nil
	}
	return rp.Markup, nil
}

// insertOrder assigns an order number and inserts the order with its
// outbox event, retrying on an order number collision.
func (s *OrderService) insertOrder(ctx context.Context, order *domain.Order) error {
	for attempt := 0; ; attempt++ {
		suffix, err := randomCode(orderNumberSuffixLen)
		if err != nil {
			return domain.ErrInternal("order number", err)
		}
		order.OrderNumber = domain.NewOrderNumber(s.now(), suffix)

		err = s.insertOrderTx(ctx, order)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) || attempt+1 >= maxOrderNumberTries {
			return domain.ErrInternal("insert order", err)
		}
	}
}

func (s *OrderService) insertOrderTx(ctx context.Context, order *domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderCreated, order)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// ProcessOrder debits the order's cost from the assigned reseller and moves
// the order to processing.
func (s *OrderService) ProcessOrder(ctx context.Context, resellerID, orderID uuid.UUID) (*domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	// Reseller first, then order: the same lock order as BulkProcess.
	if _, err := s.engine.LockUserForUpdate(ctx, tx, resellerID); err != nil {
		return nil, internalErr("lock reseller", err)
	}
	order, err := s.orders.LockForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("lock order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order", orderID.String())
	}
	if !order.BelongsToReseller(resellerID) {
		return nil, domain.ErrForbidden("order is not assigned to this reseller")
	}
	if order.Status != domain.OrderPending {
		return nil, domain.ErrConflict(fmt.Sprintf("order is %s, only pending orders can be processed", order.Status))
	}

	if order.Cost.IsPositive() {
		desc := fmt.Sprintf("Order #%s processing", order.OrderNumber)
		if _, err := s.engine.Debit(ctx, tx, resellerID, order.Cost, desc, domain.RelatedOrder, &order.ID); err != nil {
			return nil, internalErr("debit reseller", err)
		}
	}

	updated, err := s.orders.UpdateStatus(ctx, tx, order.ID, domain.OrderProcessing, nil)
	if err != nil {
		return nil, domain.ErrInternal("update order", err)
	}
	updated.Items = order.Items
	if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderProcessing, updated)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	infra.OrdersProcessedTotal.WithLabelValues("single").Inc()
	s.logger.Info("order processed", "order_id", order.ID, "reseller_id", resellerID, "cost", order.Cost)
	s.notifyCustomer(ctx, updated, "Order processing", fmt.Sprintf("Your order #%s is being processed", updated.OrderNumber))
	return updated, nil
}

// UpdateStatus lets an admin set any of the admin-settable statuses,
// without consulting the state machine.
func (s *OrderService) UpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, rawStatus string) (*domain.Order, error) {
	status, err := domain.ParseAdminOrderStatus(rawStatus)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	order, err := s.orders.LockForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("lock order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order", orderID.String())
	}

	updated, err := s.orders.UpdateStatus(ctx, tx, orderID, status, nil)
	if err != nil {
		return nil, domain.ErrInternal("update order", err)
	}
	updated.Items = order.Items
	if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderStatusChanged, updated)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("order status set by admin", "order_id", orderID, "admin_id", adminID, "from", order.Status, "to", status)

	data, _ := json.Marshal(map[string]any{"order_id": orderID, "status": status})
	s.notifier.Notify(ctx, domain.Notification{
		UserID:  updated.CustomerID,
		Kind:    domain.NotifyOrder,
		Title:   "Order updated",
		Message: fmt.Sprintf("Your order #%s is now %s", updated.OrderNumber, status),
		Data:    data,
	})
	s.notifier.NotifyRole(ctx, domain.RoleAdmin, domain.Notification{
		Kind:    domain.NotifyOrder,
		Title:   "Order status changed",
		Message: fmt.Sprintf("Order #%s changed from %s to %s", updated.OrderNumber, order.Status, status),
		Data:    data,
	})
	if updated.ResellerID != nil {
		s.notifier.Notify(ctx, domain.Notification{
			UserID:  *updated.ResellerID,
			Kind:    domain.NotifyOrder,
			Title:   "Store order updated",
			Message: fmt.Sprintf("Order #%s in your store is now %s", updated.OrderNumber, status),
			Data:    data,
		})
	}
	return updated, nil
}

// Refund marks the order's completed payment and the order refunded.
func (s *OrderService) Refund(ctx context.Context, adminID, orderID uuid.UUID, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrValidation("refund reason is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	// Payment, then the sold code, then the order. Redeeming locks the code
	// before the receipt order too.
	payment, err := s.payments.LockRefundableByOrder(ctx, tx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("lock payment", err)
	}
	receipt, err := s.orders.FindByID(ctx, tx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("find order", err)
	}
	if receipt == nil {
		return nil, domain.ErrNotFound("order", orderID.String())
	}
	if payment == nil {
		return nil, domain.ErrNotFound("payment for order", orderID.String())
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, domain.ErrConflict(fmt.Sprintf("payment is %s, only completed payments can be refunded", payment.Status))
	}
	var revoked *domain.RedeemCode
	if receipt.RedeemCode != nil {
		if revoked, err = s.revokeSoldCode(ctx, tx, *receipt.RedeemCode); err != nil {
			return nil, err
		}
	}
	order, err := s.orders.LockForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("lock order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order", orderID.String())
	}

	if err := s.payments.MarkRefunded(ctx, tx, payment.ID, reason, adminID); err != nil {
		return nil, domain.ErrInternal("refund payment", err)
	}
	msg := "refunded: " + reason
	if err := s.payments.InsertEvent(ctx, tx, &domain.PaymentEvent{
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusRefunded,
		Message:   &msg,
		ActorID:   &adminID,
	}); err != nil {
		return nil, domain.ErrInternal("record payment event", err)
	}

	refunded := domain.OrderPaymentRefunded
	updated, err := s.orders.UpdateStatus(ctx, tx, orderID, domain.OrderRefunded, &refunded)
	if err != nil {
		return nil, domain.ErrInternal("update order", err)
	}
	updated.Items = order.Items
	if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderRefunded, updated)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}
	if revoked != nil {
		if err := s.outbox.Insert(ctx, tx, domain.NewRedeemEvent(domain.EventRedeemCodeRevoked, revoked.ID, updated.CustomerID, revoked.Amount.StringFixed(2))); err != nil {
			return nil, domain.ErrInternal("insert outbox event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("order refunded", "order_id", orderID, "payment_id", payment.PaymentID, "admin_id", adminID)
	s.notifyCustomer(ctx, updated, "Order refunded", fmt.Sprintf("Your order #%s was refunded: %s", updated.OrderNumber, reason))
	return updated, nil
}

// revokeSoldCode expires the code a refunded redeem-code purchase sold, so
// the refund and the code cannot both be spent.
func (s *OrderService) revokeSoldCode(ctx context.Context, tx pgx.Tx, code string) (*domain.RedeemCode, error) {
	rc, err := s.redeem.LockCodeByCode(ctx, tx, code)
	if err != nil {
		return nil, domain.ErrInternal("lock redeem code", err)
	}
	if rc == nil {
		return nil, nil
	}
	if rc.Status == domain.CodeUsed {
		return nil, domain.ErrConflict(fmt.Sprintf("redeem code %s was already redeemed", rc.Code))
	}
	if err := s.redeem.UpdateCodeStatus(ctx, tx, rc.ID, domain.CodeExpiredStatus); err != nil {
		return nil, domain.ErrInternal("expire redeem code", err)
	}
	rc.Status = domain.CodeExpiredStatus
	return rc, nil
}

// GetOrder returns an order visible to the caller: its customer, its
// reseller, or any admin.
func (s *OrderService) GetOrder(ctx context.Context, userID uuid.UUID, role domain.Role, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, s.pool, orderID)
	if err != nil {
		return nil, domain.ErrInternal("find order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order", orderID.String())
	}
	switch {
	case role == domain.RoleAdmin:
	case order.CustomerID == userID:
	case role == domain.RoleReseller && order.BelongsToReseller(userID):
	default:
		return nil, domain.ErrNotFound("order", orderID.String())
	}
	return order, nil
}

// ListResellerOrders lists the reseller's orders, optionally by status.
func (s *OrderService) ListResellerOrders(ctx context.Context, resellerID uuid.UUID, rawStatus string, page repository.Page) ([]domain.Order, error) {
	var status *domain.OrderStatus
	if rawStatus != "" {
		st := domain.OrderStatus(rawStatus)
		switch st {
		case domain.OrderPending, domain.OrderProcessing, domain.OrderCompleted,
			domain.OrderFailed, domain.OrderRefunded, domain.OrderCancelled:
		default:
			return nil, domain.ErrValidation(fmt.Sprintf("invalid order status: %q", rawStatus))
		}
		status = &st
	}
	orders, err := s.orders.ListByReseller(ctx, s.pool, resellerID, status, page)
	if err != nil {
		return nil, domain.ErrInternal("list reseller orders", err)
	}
	return orders, nil
}

// ListCustomerOrders lists the customer's own orders.
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, page repository.Page) ([]domain.Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, s.pool, customerID, page)
	if err != nil {
		return nil, domain.ErrInternal("list customer orders", err)
	}
	return orders, nil
}

func (s *OrderService) notifyCustomer(ctx context.Context, o *domain.Order, title, message string) {
	data, _ := json.Marshal(map[string]any{"order_id": o.ID, "status": o.Status})
	s.notifier.Notify(ctx, domain.Notification{
		UserID:  o.CustomerID,
		Kind:    domain.NotifyOrder,
		Title:   title,
		Message: message,
		Data:    data,
	})
}
