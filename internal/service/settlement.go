package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	sourceWebhook = "webhook"
	sourcePoll    = "poll"
)

// settlement collects what a settled payment must tell people once the
// transaction has committed.
type settlement struct {
	payment    *domain.Payment
	outcome    domain.Outcome
	order      *domain.Order
	issuedCode *domain.RedeemCode
	reseller   *domain.User
}

// settle moves a pending payment to its final status and applies the
// per-flow effect in one transaction. The payment row lock plus the pending
// precondition make every effect happen at most once per payment, whichever
// of webhook and poll gets there first. A payment that is already final is
// returned unchanged.
func (s *PaymentService) settle(ctx context.Context, paymentID string, outcome domain.Outcome, trxID, source string, raw []byte) (*domain.Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.payments.LockByPaymentID(ctx, tx, paymentID)
	if err != nil {
		return nil, domain.ErrInternal("lock payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment", paymentID)
	}
	if p.Status != domain.PaymentStatusPending {
		infra.SettlementReplaysTotal.WithLabelValues(source).Inc()
		s.logger.Info("payment already settled", "payment_id", paymentID, "status", p.Status, "source", source)
		return p, nil
	}

	st := &settlement{payment: p, outcome: outcome}
	if outcome == domain.OutcomeSuccess {
		if err := s.applySuccess(ctx, tx, st); err != nil {
			return nil, err
		}
		if trxID != "" {
			p.TransactionID = &trxID
		}
	} else {
		if err := s.applyFailure(ctx, tx, st); err != nil {
			return nil, err
		}
		if outcome == domain.OutcomeCancelled {
			p.Metadata.Cancelled = true
			p.Metadata.CancelledAt = s.now().UTC().Format(time.RFC3339)
		}
	}

	p.Status = outcome.ResultingStatus()
	// Whatever the outcome, the hash never outlives the pending payment.
	if p.Metadata.Registration != nil {
		p.Metadata.Registration.PasswordHash = ""
	}
	if err := s.payments.Finalize(ctx, tx, p); err != nil {
		return nil, domain.ErrInternal("finalize payment", err)
	}

	msg := fmt.Sprintf("%s via %s", outcome, source)
	if p.Metadata.SettlementError != "" {
		msg += ": " + p.Metadata.SettlementError
	}
	var rawData json.RawMessage
	if json.Valid(raw) {
		rawData = raw
	}
	if err := s.payments.InsertEvent(ctx, tx, &domain.PaymentEvent{
		PaymentID: p.ID,
		Status:    p.Status,
		Message:   &msg,
		RawData:   rawData,
	}); err != nil {
		return nil, domain.ErrInternal("record payment event", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(domain.EventPaymentSettled, p)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	infra.PaymentsSettledTotal.WithLabelValues(string(p.Metadata.Type), string(p.Status), source).Inc()
	s.logger.Info("payment settled", "payment_id", paymentID, "type", p.Metadata.Type,
		"status", p.Status, "source", source, "settlement_error", p.Metadata.SettlementError)

	s.notifySettlement(ctx, st)
	return p, nil
}

// applySuccess runs the flow effect inside a savepoint. A business failure
// (card already gone, email taken) rolls back only the effect; the payment
// still completes and carries the reason in metadata for an admin to act on.
func (s *PaymentService) applySuccess(ctx context.Context, tx pgx.Tx, st *settlement) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin savepoint", err)
	}
	defer sp.Rollback(ctx)

	if err := s.successEffect(ctx, sp, st); err != nil {
		if !isBusinessError(err) {
			return internalErr("settlement effect", err)
		}
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return domain.ErrInternal("rollback savepoint", rbErr)
		}
		st.order, st.issuedCode, st.reseller = nil, nil, nil
		st.payment.Metadata.SettlementError = err.Error()
		return nil
	}
	if err := sp.Commit(ctx); err != nil {
		return domain.ErrInternal("release savepoint", err)
	}
	return nil
}

func isBusinessError(err error) bool {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		return isUniqueViolation(err)
	}
	switch appErr.Code {
	case domain.CodeConflict, domain.CodeNotFound, domain.CodeValidation, domain.CodeInsufficientFunds:
		return true
	}
	return false
}

func (s *PaymentService) successEffect(ctx context.Context, tx pgx.Tx, st *settlement) error {
	p := st.payment
	switch p.Metadata.Type {
	case domain.PaymentForOrder:
		if p.OrderID == nil {
			return domain.ErrValidation("order payment has no order")
		}
		order, err := s.orders.LockForUpdate(ctx, tx, *p.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return domain.ErrNotFound("order", p.OrderID.String())
		}
		if order.Status != domain.OrderPending {
			return domain.ErrConflict(fmt.Sprintf("order #%s is %s", order.OrderNumber, order.Status))
		}
		status, payStatus := st.outcome.OrderEffect()
		updated, err := s.orders.UpdateStatus(ctx, tx, order.ID, status, &payStatus)
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderProcessing, updated)); err != nil {
			return err
		}
		st.order = updated

	case domain.PaymentForWalletTopup:
		if p.UserID == nil {
			return domain.ErrValidation("top-up payment has no user")
		}
		if _, err := s.engine.Credit(ctx, tx, *p.UserID, p.Amount, "Wallet top-up", domain.RelatedWalletTopup, &p.ID); err != nil {
			return err
		}

	case domain.PaymentForRedeemCard:
		if p.UserID == nil || p.Metadata.CardID == nil {
			return domain.ErrValidation("card payment is missing user or card")
		}
		code, err := s.codes.consumeCard(ctx, tx, *p.Metadata.CardID, *p.UserID)
		if err != nil {
			return err
		}
		p.Metadata.IssuedCode = code.Code
		st.issuedCode = code

	case domain.PaymentForRedeemCode:
		if p.UserID == nil {
			return domain.ErrValidation("code payment has no user")
		}
		code, err := s.codes.issueCode(ctx, tx, domain.DefaultCodePrefix, p.Amount, nil, s.codes.defaultExpiry())
		if err != nil {
			return err
		}
		order, err := s.createReceiptOrder(ctx, tx, *p.UserID, code)
		if err != nil {
			return err
		}
		p.OrderID = &order.ID
		p.Metadata.IssuedCode = code.Code
		st.issuedCode = code
		st.order = order

	case domain.PaymentForResellerRegistration:
		reseller, err := s.registerReseller(ctx, tx, p.Metadata.Registration)
		if err != nil {
			return err
		}
		st.reseller = reseller

	default:
		return domain.ErrValidation(fmt.Sprintf("unknown payment type %q", p.Metadata.Type))
	}
	return nil
}

// createReceiptOrder records a redeem-code purchase as a completed, paid
// order carrying the code.
func (s *PaymentService) createReceiptOrder(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, code *domain.RedeemCode) (*domain.Order, error) {
	suffix, err := randomCode(orderNumberSuffixLen)
	if err != nil {
		return nil, fmt.Errorf("order number: %w", err)
	}
	meta, _ := json.Marshal(map[string]string{"code": code.Code})
	redeemPending := domain.RedeemPending
	order := &domain.Order{
		ID:            uuid.New(),
		OrderNumber:   domain.NewOrderNumber(s.now(), suffix),
		CustomerID:    customerID,
		Total:         code.Amount,
		Cost:          code.Amount,
		Status:        domain.OrderCompleted,
		PaymentStatus: domain.OrderPaid,
		RedeemCode:    &code.Code,
		RedeemStatus:  &redeemPending,
		Items: []domain.OrderItem{{
			ID:             uuid.New(),
			SubProductName: "Redeem code " + code.Amount.StringFixed(2),
			Quantity:       1,
			Price:          code.Amount,
			Metadata:       meta,
		}},
	}
	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderCreated, order)); err != nil {
		return nil, err
	}
	return order, nil
}

// registerReseller creates the pending reseller account and store paid for
// by a registration fee.
func (s *PaymentService) registerReseller(ctx context.Context, tx pgx.Tx, reg *domain.RegistrationPayload) (*domain.User, error) {
	if reg == nil {
		return nil, domain.ErrValidation("registration payment has no registration data")
	}
	existing, err := s.users.FindByEmail(ctx, tx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered: " + reg.Email)
	}
	taken, err := s.stores.SubdomainTaken(ctx, tx, reg.Subdomain)
	if err != nil {
		return nil, fmt.Errorf("check subdomain: %w", err)
	}
	if taken {
		return nil, domain.ErrConflict("subdomain already taken: " + reg.Subdomain)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        reg.Email,
		Name:         reg.Name,
		Phone:        reg.Phone,
		PasswordHash: reg.PasswordHash,
		Role:         domain.RoleReseller,
		Status:       domain.UserPending,
		Wallet:       domain.Wallet{Currency: s.cfg.Currency},
	}
	if err := s.users.Create(ctx, tx, user); err != nil {
		return nil, err
	}
	store := &domain.Store{
		ID:        uuid.New(),
		OwnerID:   user.ID,
		Name:      reg.StoreName,
		Subdomain: reg.Subdomain,
	}
	if err := s.stores.Create(ctx, tx, store); err != nil {
		return nil, err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewResellerRegisteredEvent(user, store.ID)); err != nil {
		return nil, err
	}
	return user, nil
}

// applyFailure moves a still-pending linked order to failed or cancelled.
// Orders that already moved on are left alone.
func (s *PaymentService) applyFailure(ctx context.Context, tx pgx.Tx, st *settlement) error {
	p := st.payment
	if p.Metadata.Type != domain.PaymentForOrder || p.OrderID == nil {
		return nil
	}
	order, err := s.orders.LockForUpdate(ctx, tx, *p.OrderID)
	if err != nil {
		return domain.ErrInternal("lock order", err)
	}
	if order == nil || order.Status != domain.OrderPending {
		return nil
	}
	status, payStatus := st.outcome.OrderEffect()
	updated, err := s.orders.UpdateStatus(ctx, tx, order.ID, status, &payStatus)
	if err != nil {
		return domain.ErrInternal("update order", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewOrderEvent(domain.EventOrderStatusChanged, updated)); err != nil {
		return domain.ErrInternal("insert outbox event", err)
	}
	st.order = updated
	return nil
}

func (s *PaymentService) notifySettlement(ctx context.Context, st *settlement) {
	p := st.payment
	data, _ := json.Marshal(map[string]any{
		"payment_id": p.PaymentID,
		"type":       p.Metadata.Type,
		"status":     p.Status,
		"order_id":   p.OrderID,
	})

	if p.Metadata.SettlementError != "" {
		s.notifier.NotifyRole(ctx, domain.RoleAdmin, domain.Notification{
			Kind:    domain.NotifySettling,
			Title:   "Payment needs attention",
			Message: fmt.Sprintf("Payment %s (%s) completed but could not be applied: %s", p.PaymentID, p.Metadata.Type, p.Metadata.SettlementError),
			Data:    data,
		})
	}

	if p.UserID != nil {
		n := domain.Notification{UserID: *p.UserID, Kind: domain.NotifyPayment, Data: data}
		switch {
		case st.outcome != domain.OutcomeSuccess:
			n.Title = "Payment " + string(st.outcome)
			n.Message = fmt.Sprintf("Your payment of %s was %s", p.Amount.StringFixed(2), st.outcome)
		case st.issuedCode != nil:
			n.Kind = domain.NotifyRedeem
			n.Title = "Your redeem code"
			n.Message = fmt.Sprintf("Your code %s is worth %s", st.issuedCode.Code, st.issuedCode.Amount.StringFixed(2))
		case p.Metadata.Type == domain.PaymentForWalletTopup && p.Metadata.SettlementError == "":
			n.Kind = domain.NotifyWallet
			n.Title = "Wallet topped up"
			n.Message = fmt.Sprintf("%s was added to your wallet", p.Amount.StringFixed(2))
		default:
			n.Title = "Payment received"
			n.Message = fmt.Sprintf("We received your payment of %s", p.Amount.StringFixed(2))
		}
		s.notifier.Notify(ctx, n)
	}

	if st.order != nil && st.order.ResellerID != nil && st.outcome == domain.OutcomeSuccess {
		s.notifier.Notify(ctx, domain.Notification{
			UserID:  *st.order.ResellerID,
			Kind:    domain.NotifyOrder,
			Title:   "New paid order",
			Message: fmt.Sprintf("Order #%s was paid and is ready to fulfil", st.order.OrderNumber),
			Data:    data,
		})
	}

	if st.reseller != nil {
		s.notifier.NotifyRole(ctx, domain.RoleAdmin, domain.Notification{
			Kind:    domain.NotifyAccount,
			Title:   "Reseller awaiting approval",
			Message: fmt.Sprintf("%s registered store and paid the fee", st.reseller.Email),
			Data:    data,
		})
	}
}
