package repository

import (
	"context"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// UserRepository provides access to users and their embedded wallet.
type UserRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.User, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the user.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)

	Create(ctx context.Context, db DBTX, user *domain.User) error

	// AdjustBalance applies delta with server-side arithmetic and returns the
	// updated row. Callers must hold the row lock.
	AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta decimal.Decimal) (*domain.User, error)

	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.UserStatus) (*domain.User, error)

	// ListIDsByRole returns the ids of active users holding role.
	ListIDsByRole(ctx context.Context, db DBTX, role domain.Role) ([]uuid.UUID, error)
}

// WalletTransactionRepository provides access to wallet_transactions (append-only).
type WalletTransactionRepository interface {
	Insert(ctx context.Context, db DBTX, tx *domain.WalletTransaction) error

	// ListByUser returns rows newest first. cursor is the id of the last row
	// of the previous page.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]domain.WalletTransaction, error)
}

// OrderRepository provides access to orders and order_items.
type OrderRepository interface {
	Create(ctx context.Context, db DBTX, order *domain.Order) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Order, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error)

	// LockResellerOrders locks the subset of ids assigned to resellerID, in id
	// order so concurrent batches cannot deadlock.
	LockResellerOrders(ctx context.Context, tx pgx.Tx, resellerID uuid.UUID, ids []uuid.UUID) ([]domain.Order, error)

	// UpdateStatus sets status, and payment_status when non-nil.
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.OrderStatus, paymentStatus *domain.OrderPaymentStatus) (*domain.Order, error)

	// MarkRedeemUsed flips redeem_status to used on the receipt order that sold code.
	MarkRedeemUsed(ctx context.Context, db DBTX, code string) error

	ListByReseller(ctx context.Context, db DBTX, resellerID uuid.UUID, status *domain.OrderStatus, page Page) ([]domain.Order, error)
	ListByCustomer(ctx context.Context, db DBTX, customerID uuid.UUID, page Page) ([]domain.Order, error)
}

// PaymentRepository provides access to payments and payment_events.
type PaymentRepository interface {
	Create(ctx context.Context, db DBTX, payment *domain.Payment) error
	FindByPaymentID(ctx context.Context, db DBTX, paymentID string) (*domain.Payment, error)
	LockByPaymentID(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error)

	// LockRefundableByOrder locks the completed payment linked to orderID.
	// When none is completed it locks the most recent one so callers can
	// report its status.
	LockRefundableByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Payment, error)

	HasPendingForOrder(ctx context.Context, db DBTX, orderID uuid.UUID) (bool, error)

	// Finalize writes the final status, the gateway trxID when non-nil, the
	// linked order and the full metadata document.
	Finalize(ctx context.Context, db DBTX, p *domain.Payment) error

	MarkRefunded(ctx context.Context, db DBTX, id uuid.UUID, reason string, by uuid.UUID) error
	InsertEvent(ctx context.Context, db DBTX, event *domain.PaymentEvent) error
	ListEvents(ctx context.Context, db DBTX, paymentID uuid.UUID) ([]domain.PaymentEvent, error)
}

// RedeemRepository provides access to redeem_codes and redeem_cards.
type RedeemRepository interface {
	// InsertCode returns false without error when the code already exists.
	InsertCode(ctx context.Context, db DBTX, code *domain.RedeemCode) (bool, error)
	FindCodeByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.RedeemCode, error)
	LockCodeByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.RedeemCode, error)
	LockCodeByCode(ctx context.Context, tx pgx.Tx, code string) (*domain.RedeemCode, error)
	MarkCodeUsed(ctx context.Context, db DBTX, id, userID uuid.UUID) error
	UpdateCodeStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.RedeemCodeStatus) error
	DeleteCode(ctx context.Context, db DBTX, id uuid.UUID) error
	ListCodes(ctx context.Context, db DBTX, status *domain.RedeemCodeStatus, page Page) ([]domain.RedeemCode, error)

	InsertCard(ctx context.Context, db DBTX, card *domain.RedeemCard) error
	FindCard(ctx context.Context, db DBTX, id uuid.UUID) (*domain.RedeemCard, error)
	LockCard(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.RedeemCard, error)
	MarkCardUsed(ctx context.Context, db DBTX, id, userID uuid.UUID) error
	UpdateCardStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.RedeemCodeStatus) error
	DeleteCard(ctx context.Context, db DBTX, id uuid.UUID) error
	ListCards(ctx context.Context, db DBTX, status *domain.RedeemCodeStatus) ([]domain.RedeemCard, error)
}

// StoreRepository provides access to stores and reseller_products.
type StoreRepository interface {
	Create(ctx context.Context, db DBTX, store *domain.Store) error
	FindByOwner(ctx context.Context, db DBTX, ownerID uuid.UUID) (*domain.Store, error)
	SubdomainTaken(ctx context.Context, db DBTX, subdomain string) (bool, error)
	GetMarkup(ctx context.Context, db DBTX, resellerID, productID uuid.UUID) (*domain.ResellerProduct, error)
	UpsertMarkup(ctx context.Context, db DBTX, rp *domain.ResellerProduct) error
}

// ProductRepository provides read access to the catalog.
type ProductRepository interface {
	// FindVariant returns a variant of an active product.
	FindVariant(ctx context.Context, db DBTX, variantID uuid.UUID) (*domain.ProductVariant, error)
	Create(ctx context.Context, db DBTX, product *domain.Product) error
}

// NotificationRepository provides access to notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, db DBTX, n *domain.Notification) error
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, page Page) ([]domain.Notification, error)
	MarkRead(ctx context.Context, db DBTX, userID, id uuid.UUID) (bool, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns the oldest events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished deletes published events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
