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

const orderColumns = `id, order_number, customer_id, reseller_id, total, cost, status, payment_status,
		       redeem_code, redeem_status, created_at, updated_at`

type orderRepo struct{}

// NewOrderRepository returns a pgx-backed OrderRepository.
func NewOrderRepository() OrderRepository {
	return &orderRepo{}
}

func (r *orderRepo) Create(ctx context.Context, db DBTX, o *domain.Order) error {
	row := db.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, customer_id, reseller_id, total, cost, status, payment_status,
		                    redeem_code, redeem_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.CustomerID, o.ResellerID,
		infra.DecimalToNumeric(o.Total), infra.DecimalToNumeric(o.Cost),
		string(o.Status), string(o.PaymentStatus),
		o.RedeemCode, o.RedeemStatus,
	)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		meta := item.Metadata
		if meta == nil {
			meta = json.RawMessage(`{}`)
		}
		_, err := db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, sub_product_name, quantity, price, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, o.ID, i, item.ProductID, item.SubProductName, item.Quantity,
			infra.DecimalToNumeric(item.Price), meta,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Order, error) {
	row := db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil || o == nil {
		return nil, err
	}
	if err := r.loadItems(ctx, db, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil || o == nil {
		return nil, err
	}
	if err := r.loadItems(ctx, tx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) LockResellerOrders(ctx context.Context, tx pgx.Tx, resellerID uuid.UUID, ids []uuid.UUID) ([]domain.Order, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE reseller_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE`, resellerID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock reseller orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.OrderStatus, paymentStatus *domain.OrderPaymentStatus) (*domain.Order, error) {
	var ps *string
	if paymentStatus != nil {
		s := string(*paymentStatus)
		ps = &s
	}
	row := db.QueryRow(ctx, `
		UPDATE orders SET status = $2, payment_status = COALESCE($3, payment_status), updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		id, string(status), ps)
	o, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

func (r *orderRepo) MarkRedeemUsed(ctx context.Context, db DBTX, code string) error {
	_, err := db.Exec(ctx, `
		UPDATE orders SET redeem_status = 'used', updated_at = now()
		WHERE redeem_code = $1 AND redeem_status = 'pending'`, code)
	if err != nil {
		return fmt.Errorf("mark redeem used: %w", err)
	}
	return nil
}

func (r *orderRepo) ListByReseller(ctx context.Context, db DBTX, resellerID uuid.UUID, status *domain.OrderStatus, page Page) ([]domain.Order, error) {
	page = page.normalize()
	var st *string
	if status != nil {
		s := string(*status)
		st = &s
	}
	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE reseller_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, resellerID, st, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query reseller orders: %w", err)
	}
	return r.collectWithItems(ctx, db, rows)
}

func (r *orderRepo) ListByCustomer(ctx context.Context, db DBTX, customerID uuid.UUID, page Page) ([]domain.Order, error) {
	page = page.normalize()
	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query customer orders: %w", err)
	}
	return r.collectWithItems(ctx, db, rows)
}

func (r *orderRepo) collectWithItems(ctx context.Context, db DBTX, rows pgx.Rows) ([]domain.Order, error) {
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*domain.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := r.loadItems(ctx, db, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills Items for every order with one query.
func (r *orderRepo) loadItems(ctx context.Context, db DBTX, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		o.Items = []domain.OrderItem{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := db.Query(ctx, `
		SELECT order_id, id, product_id, sub_product_name, quantity, price, metadata
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		var priceNum pgtype.Numeric
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.SubProductName,
			&item.Quantity, &priceNum, &item.Metadata); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.Price, err = infra.NumericToDecimal(priceNum)
		if err != nil {
			return fmt.Errorf("convert item price: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func scanOrder(row scanner) (*domain.Order, error) {
	var o domain.Order
	var totalNum, costNum pgtype.Numeric
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.ResellerID, &totalNum, &costNum,
		&o.Status, &o.PaymentStatus, &o.RedeemCode, &o.RedeemStatus, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Total, err = infra.NumericToDecimal(totalNum)
	if err != nil {
		return nil, fmt.Errorf("convert total: %w", err)
	}
	o.Cost, err = infra.NumericToDecimal(costNum)
	if err != nil {
		return nil, fmt.Errorf("convert cost: %w", err)
	}
	return &o, nil
}
