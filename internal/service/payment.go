package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/ledger"
	"github.com/gamemart/ledger/internal/provider"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// PaymentConfig holds the settings the payment flows need.
type PaymentConfig struct {
	Currency        string
	RegistrationFee decimal.Decimal
	PublicBaseURL   string
	FrontendBaseURL string
}

// PaymentService initializes gateway payments and reconciles their
// results from webhooks and client polls.
type PaymentService struct {
	pool     *pgxpool.Pool
	gateway  provider.Gateway
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	users    repository.UserRepository
	stores   repository.StoreRepository
	redeem   repository.RedeemRepository
	outbox   repository.OutboxRepository
	engine   *ledger.Engine
	codes    *RedeemService
	notifier Notifier
	cfg      PaymentConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	pool *pgxpool.Pool,
	gateway provider.Gateway,
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	stores repository.StoreRepository,
	redeem repository.RedeemRepository,
	outbox repository.OutboxRepository,
	engine *ledger.Engine,
	codes *RedeemService,
	notifier Notifier,
	cfg PaymentConfig,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		pool:     pool,
		gateway:  gateway,
		payments: payments,
		orders:   orders,
		users:    users,
		stores:   stores,
		redeem:   redeem,
		outbox:   outbox,
		engine:   engine,
		codes:    codes,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RegistrationInput is the sign-up data of a reseller paying the
// registration fee.
type RegistrationInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Password  string `json:"password"`
	StoreName string `json:"store_name"`
	Subdomain string `json:"subdomain"`
}

// Validate checks and normalizes the registration fields.
func (in *RegistrationInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.StoreName = strings.TrimSpace(in.StoreName)
	in.Subdomain = strings.ToLower(strings.TrimSpace(in.Subdomain))

	if in.Name == "" {
		return domain.ErrValidation("name is required")
	}
	if err := domain.ValidateEmail(in.Email); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if len(in.Password) < minPasswordLen {
		return domain.ErrValidation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if in.StoreName == "" {
		return domain.ErrValidation("store_name is required")
	}
	if err := domain.ValidateSubdomain(in.Subdomain); err != nil {
		return domain.ErrValidation(err.Error())
	}
	return nil
}

// InitializeInput starts a payment for one of the purchase flows.
type InitializeInput struct {
	Type         domain.PaymentType `json:"type"`
	UserID       *uuid.UUID         `json:"-"`
	OrderID      *uuid.UUID         `json:"order_id,omitempty"`
	CardID       *uuid.UUID         `json:"card_id,omitempty"`
	Amount       decimal.Decimal    `json:"amount"`
	Registration *RegistrationInput `json:"registration,omitempty"`
}

// InitializeResult tells the client where to pay.
type InitializeResult struct {
	PaymentID   string `json:"paymentId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// Initialize validates the flow, opens a gateway checkout and records a
// pending payment. The gateway is called before any local transaction.
func (s *PaymentService) Initialize(ctx context.Context, in InitializeInput) (*InitializeResult, error) {
	if !in.Type.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("invalid payment type: %q", in.Type))
	}

	payment, err := s.preparePayment(ctx, in)
	if err != nil {
		return nil, err
	}

	var userRef string
	if payment.UserID != nil {
		userRef = payment.UserID.String()
	}
	session, err := s.gateway.Initialize(ctx, provider.CheckoutRequest{
		Type:        in.Type,
		UserID:      userRef,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: payment.Metadata.Description,
		SuccessURL:  s.cfg.FrontendBaseURL + "/payment/processing?type=" + string(in.Type),
		CancelURL:   domain.RedirectURL(s.cfg.FrontendBaseURL, in.Type, domain.OutcomeCancelled, payment.OrderID),
		WebhookURL:  s.cfg.PublicBaseURL + "/webhooks/gateway",
	})
	if err != nil {
		return nil, internalErr("gateway initialize", err)
	}
	payment.PaymentID = session.PaymentID
	payment.CheckoutURL = session.CheckoutURL

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := s.payments.Create(ctx, tx, payment); err != nil {
		if isUniqueViolation(err) && payment.OrderID != nil {
			s.logger.Warn("concurrent checkout for order", "order_id", payment.OrderID, "payment_id", payment.PaymentID)
			return nil, domain.ErrConflict("order already has a checkout in progress")
		}
		return nil, domain.ErrInternal("record payment", err)
	}
	msg := "checkout session created"
	if err := s.payments.InsertEvent(ctx, tx, &domain.PaymentEvent{
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusPending,
		Message:   &msg,
		ActorID:   payment.UserID,
	}); err != nil {
		return nil, domain.ErrInternal("record payment event", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(domain.EventPaymentInitialized, payment)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	infra.PaymentsInitializedTotal.WithLabelValues(string(in.Type)).Inc()
	s.logger.Info("payment initialized", "payment_id", payment.PaymentID, "type", in.Type, "amount", payment.Amount)
	return &InitializeResult{PaymentID: payment.PaymentID, CheckoutURL: payment.CheckoutURL}, nil
}

// preparePayment validates the flow-specific input and builds the pending
// payment row, without touching the gateway.
func (s *PaymentService) preparePayment(ctx context.Context, in InitializeInput) (*domain.Payment, error) {
	p := &domain.Payment{
		ID:       uuid.New(),
		UserID:   in.UserID,
		Currency: s.cfg.Currency,
		Status:   domain.PaymentStatusPending,
		Metadata: domain.PaymentMetadata{Type: in.Type, UserID: in.UserID},
	}

	if in.Type != domain.PaymentForResellerRegistration && in.UserID == nil {
		return nil, domain.ErrUnauthorized("authentication required")
	}

	switch in.Type {
	case domain.PaymentForOrder:
		if in.OrderID == nil {
			return nil, domain.ErrValidation("order_id is required")
		}
		order, err := s.orders.FindByID(ctx, s.pool, *in.OrderID)
		if err != nil {
			return nil, domain.ErrInternal("find order", err)
		}
		if order == nil || order.CustomerID != *in.UserID {
			return nil, domain.ErrNotFound("order", in.OrderID.String())
		}
		if order.Status != domain.OrderPending || order.PaymentStatus != domain.OrderUnpaid {
			return nil, domain.ErrConflict("order is not awaiting payment")
		}
		inFlight, err := s.payments.HasPendingForOrder(ctx, s.pool, order.ID)
		if err != nil {
			return nil, domain.ErrInternal("check pending payment", err)
		}
		if inFlight {
			return nil, domain.ErrConflict("order already has a checkout in progress")
		}
		p.OrderID = &order.ID
		p.Amount = order.Total
		p.Metadata.Description = "Order #" + order.OrderNumber

	case domain.PaymentForWalletTopup:
		if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		p.Amount = in.Amount
		p.Metadata.Description = "Wallet top-up"

	case domain.PaymentForRedeemCard:
		if in.CardID == nil {
			return nil, domain.ErrValidation("card_id is required")
		}
		card, err := s.redeem.FindCard(ctx, s.pool, *in.CardID)
		if err != nil {
			return nil, domain.ErrInternal("find redeem card", err)
		}
		if card == nil {
			return nil, domain.ErrNotFound("redeem card", in.CardID.String())
		}
		if card.Status != domain.CodeActive {
			return nil, domain.ErrConflict("redeem card is no longer available")
		}
		p.Amount = card.Amount
		p.Metadata.CardID = &card.ID
		p.Metadata.Description = "Redeem card " + card.Amount.StringFixed(2)

	case domain.PaymentForRedeemCode:
		if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		p.Amount = in.Amount
		p.Metadata.Description = "Redeem code " + in.Amount.StringFixed(2)

	case domain.PaymentForResellerRegistration:
		reg, err := s.prepareRegistration(ctx, in.Registration)
		if err != nil {
			return nil, err
		}
		p.UserID = nil
		p.Metadata.UserID = nil
		p.Amount = s.cfg.RegistrationFee
		p.Metadata.Registration = reg
		p.Metadata.Description = "Reseller registration fee"
	}
	return p, nil
}

func (s *PaymentService) prepareRegistration(ctx context.Context, in *RegistrationInput) (*domain.RegistrationPayload, error) {
	if in == nil {
		return nil, domain.ErrValidation("registration is required")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, s.pool, in.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}
	taken, err := s.stores.SubdomainTaken(ctx, s.pool, in.Subdomain)
	if err != nil {
		return nil, domain.ErrInternal("check subdomain", err)
	}
	if taken {
		return nil, domain.ErrConflict("subdomain already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}
	return &domain.RegistrationPayload{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		StoreName:    in.StoreName,
		Subdomain:    in.Subdomain,
	}, nil
}

// HandleWebhook verifies and applies a gateway webhook. Unknown events and
// unknown payments are acknowledged so the gateway stops retrying.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.gateway.VerifyWebhook(payload, sigHeader)
	if err != nil {
		infra.WebhooksReceivedTotal.WithLabelValues("unknown", "rejected").Inc()
		s.logger.Warn("webhook rejected", "error", err)
		return err
	}

	outcome, ok := event.Outcome()
	if !ok {
		infra.WebhooksReceivedTotal.WithLabelValues(event.Event, "ignored").Inc()
		s.logger.Info("unhandled webhook event", "event", event.Event, "payment_id", event.PaymentID)
		return nil
	}

	if _, err := s.settle(ctx, event.PaymentID, outcome, event.TrxID, sourceWebhook, payload); err != nil {
		if domain.HasCode(err, domain.CodeNotFound) {
			infra.WebhooksReceivedTotal.WithLabelValues(event.Event, "unknown_payment").Inc()
			s.logger.Warn("webhook for unknown payment", "payment_id", event.PaymentID, "event", event.Event)
			return nil
		}
		infra.WebhooksReceivedTotal.WithLabelValues(event.Event, "error").Inc()
		return err
	}
	infra.WebhooksReceivedTotal.WithLabelValues(event.Event, "ok").Inc()
	return nil
}

// VerifyResult is what a polling client gets back.
type VerifyResult struct {
	PaymentID   string               `json:"paymentId"`
	Status      domain.PaymentStatus `json:"status"`
	RedirectURL string               `json:"redirectUrl,omitempty"`
	CheckoutURL string               `json:"checkoutUrl,omitempty"`
}

// Verify reports a payment's state to a polling client. A pending payment
// is checked with the gateway, and settled if the gateway has a result.
func (s *PaymentService) Verify(ctx context.Context, callerID uuid.UUID, role domain.Role, paymentID string) (*VerifyResult, error) {
	payment, err := s.payments.FindByPaymentID(ctx, s.pool, paymentID)
	if err != nil {
		return nil, domain.ErrInternal("find payment", err)
	}
	if payment == nil || !canView(payment, callerID, role) {
		return nil, domain.ErrNotFound("payment", paymentID)
	}

	if payment.Status == domain.PaymentStatusPending {
		res, err := s.gateway.Verify(ctx, paymentID)
		if err != nil {
			s.logger.Warn("gateway verify failed", "payment_id", paymentID, "error", err)
		} else if outcome, final := res.Outcome(); final {
			settled, err := s.settle(ctx, paymentID, outcome, res.TrxID, sourcePoll, nil)
			if err != nil {
				return nil, err
			}
			payment = settled
		}
	}

	out := &VerifyResult{PaymentID: payment.PaymentID, Status: payment.Status}
	if payment.Status == domain.PaymentStatusPending {
		out.CheckoutURL = payment.CheckoutURL
		return out, nil
	}
	out.RedirectURL = domain.RedirectURL(s.cfg.FrontendBaseURL, payment.Metadata.Type, payment.ClientOutcome(), payment.OrderID)
	return out, nil
}

// canView reports whether caller may see payment. Registration payments
// carry no user and are visible to whoever holds the payment id.
func canView(p *domain.Payment, callerID uuid.UUID, role domain.Role) bool {
	if role == domain.RoleAdmin || p.UserID == nil {
		return true
	}
	return *p.UserID == callerID
}

// PaymentDetail is a payment with its audit trail.
type PaymentDetail struct {
	Payment *domain.Payment       `json:"payment"`
	Events  []domain.PaymentEvent `json:"events"`
}

// GetPayment returns a payment and its events for admins.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	payment, err := s.payments.FindByPaymentID(ctx, s.pool, paymentID)
	if err != nil {
		return nil, domain.ErrInternal("find payment", err)
	}
	if payment == nil {
		return nil, domain.ErrNotFound("payment", paymentID)
	}
	events, err := s.payments.ListEvents(ctx, s.pool, payment.ID)
	if err != nil {
		return nil, domain.ErrInternal("list payment events", err)
	}
	if events == nil {
		events = []domain.PaymentEvent{}
	}
	// The hash stays server-side.
	if payment.Metadata.Registration != nil {
		payment.Metadata.Registration.PasswordHash = ""
	}
	return &PaymentDetail{Payment: payment, Events: events}, nil
}
