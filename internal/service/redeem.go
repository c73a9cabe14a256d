package service

import (
	"context"
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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	codeLength       = 8
	maxCodeAttempts  = 10
	maxDescriptionSz = 500
)

// RedeemService owns redeem codes and cards.
type RedeemService struct {
	pool         *pgxpool.Pool
	redeem       repository.RedeemRepository
	orders       repository.OrderRepository
	outbox       repository.OutboxRepository
	engine       *ledger.Engine
	notifier     Notifier
	validityDays int
	logger       *slog.Logger
	now          func() time.Time
}

// NewRedeemService creates a RedeemService. validityDays is the default
// lifetime of a freshly issued code.
func NewRedeemService(
	pool *pgxpool.Pool,
	redeem repository.RedeemRepository,
	orders repository.OrderRepository,
	outbox repository.OutboxRepository,
	engine *ledger.Engine,
	notifier Notifier,
	validityDays int,
	logger *slog.Logger,
) *RedeemService {
	return &RedeemService{
		pool:         pool,
		redeem:       redeem,
		orders:       orders,
		outbox:       outbox,
		engine:       engine,
		notifier:     notifier,
		validityDays: validityDays,
		logger:       logger,
		now:          time.Now,
	}
}

// GenerateCodesInput is the admin request to issue a batch of codes.
type GenerateCodesInput struct {
	Count         int             `json:"count"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresInDays int             `json:"expires_in_days"`
	Prefix        string          `json:"prefix"`
}

// Validate checks the request and fills defaults.
func (in *GenerateCodesInput) Validate(defaultDays int) error {
	if err := domain.ValidateCodeCount(in.Count); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if in.ExpiresInDays < 0 {
		return domain.ErrValidation("expires_in_days must not be negative")
	}
	if in.ExpiresInDays == 0 {
		in.ExpiresInDays = defaultDays
	}
	in.Prefix = strings.ToUpper(strings.TrimSpace(in.Prefix))
	if in.Prefix == "" {
		in.Prefix = domain.DefaultCodePrefix
	}
	if err := domain.ValidateCodePrefix(in.Prefix); err != nil {
		return domain.ErrValidation(err.Error())
	}
	return nil
}

// GenerateCodes issues in.Count codes in one transaction.
func (s *RedeemService) GenerateCodes(ctx context.Context, adminID uuid.UUID, in GenerateCodesInput) ([]domain.RedeemCode, error) {
	if err := in.Validate(s.validityDays); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	expiresAt := s.now().Add(time.Duration(in.ExpiresInDays) * 24 * time.Hour)
	codes := make([]domain.RedeemCode, 0, in.Count)
	for i := 0; i < in.Count; i++ {
		code, err := s.issueCode(ctx, tx, in.Prefix, in.Amount, &adminID, expiresAt)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *code)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("redeem codes generated", "admin_id", adminID, "count", in.Count, "amount", in.Amount, "prefix", in.Prefix)
	return codes, nil
}

// issueCode inserts one fresh code, retrying on collision.
func (s *RedeemService) issueCode(ctx context.Context, db repository.DBTX, prefix string, amount decimal.Decimal, createdBy *uuid.UUID, expiresAt time.Time) (*domain.RedeemCode, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		suffix, err := randomCode(codeLength)
		if err != nil {
			return nil, domain.ErrInternal("generate code", err)
		}
		code := &domain.RedeemCode{
			ID:        uuid.New(),
			Code:      prefix + "-" + suffix,
			Amount:    amount,
			Status:    domain.CodeActive,
			CreatedBy: createdBy,
			ExpiresAt: expiresAt,
		}
		inserted, err := s.redeem.InsertCode(ctx, db, code)
		if err != nil {
			return nil, domain.ErrInternal("insert redeem code", err)
		}
		if inserted {
			return code, nil
		}
		s.logger.Warn("redeem code collision, retrying", "attempt", attempt+1)
	}
	return nil, domain.ErrInternal("generate code", fmt.Errorf("no unique code after %d attempts", maxCodeAttempts))
}

// defaultExpiry is the expiry of a code issued by a purchase.
func (s *RedeemService) defaultExpiry() time.Time {
	return s.now().Add(time.Duration(s.validityDays) * 24 * time.Hour)
}

// RedeemResult is returned to the user after a successful redemption.
type RedeemResult struct {
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// Redeem credits the code's amount to userID and marks it used. The code
// row lock makes concurrent attempts on one code single-use.
func (s *RedeemService) Redeem(ctx context.Context, userID uuid.UUID, rawCode string) (*RedeemResult, error) {
	code := domain.NormalizeCode(rawCode)
	if code == "" {
		return nil, domain.ErrValidation("code is required")
	}

	result, err := s.redeemTx(ctx, userID, code)
	if err != nil {
		label := "error"
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			label = strings.ToLower(appErr.Code)
		}
		infra.RedemptionsTotal.WithLabelValues(label).Inc()
		return nil, err
	}
	infra.RedemptionsTotal.WithLabelValues("ok").Inc()

	s.notifier.Notify(ctx, domain.Notification{
		UserID:  userID,
		Kind:    domain.NotifyRedeem,
		Title:   "Code redeemed",
		Message: fmt.Sprintf("Code %s added %s to your wallet", result.Code, result.Amount.StringFixed(2)),
	})
	return result, nil
}

func (s *RedeemService) redeemTx(ctx context.Context, userID uuid.UUID, code string) (*RedeemResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	rc, err := s.redeem.LockCodeByCode(ctx, tx, code)
	if err != nil {
		return nil, domain.ErrInternal("lock redeem code", err)
	}
	if rc == nil {
		return nil, domain.ErrNotFound("redeem code", code)
	}
	if err := rc.CheckRedeemable(s.now()); err != nil {
		return nil, err
	}

	res, err := s.engine.Credit(ctx, tx, userID, rc.Amount, "Redeemed code "+rc.Code, domain.RelatedRedeemCode, &rc.ID)
	if err != nil {
		return nil, internalErr("credit wallet", err)
	}
	if err := s.redeem.MarkCodeUsed(ctx, tx, rc.ID, userID); err != nil {
		return nil, internalErr("mark code used", err)
	}
	if err := s.orders.MarkRedeemUsed(ctx, tx, rc.Code); err != nil {
		return nil, domain.ErrInternal("mark receipt order", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewRedeemEvent(domain.EventRedeemCodeUsed, rc.ID, userID, rc.Amount.StringFixed(2))); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("redeem code used", "code_id", rc.ID, "user_id", userID, "amount", rc.Amount)
	return &RedeemResult{Code: rc.Code, Amount: rc.Amount, Balance: res.User.Wallet.Balance}, nil
}

// settableStatus validates an admin status write on a code or card.
func settableStatus(status domain.RedeemCodeStatus) error {
	if status != domain.CodeActive && status != domain.CodeExpiredStatus {
		return domain.ErrValidation(fmt.Sprintf("status must be active or expired, got %q", status))
	}
	return nil
}

// UpdateCodeStatus activates or expires an unused code.
func (s *RedeemService) UpdateCodeStatus(ctx context.Context, id uuid.UUID, status domain.RedeemCodeStatus) (*domain.RedeemCode, error) {
	if err := settableStatus(status); err != nil {
		return nil, err
	}
	return s.mutateCode(ctx, id, func(tx repository.DBTX, rc *domain.RedeemCode) error {
		if err := s.redeem.UpdateCodeStatus(ctx, tx, id, status); err != nil {
			return err
		}
		rc.Status = status
		return nil
	})
}

// DeleteCode removes an unused code.
func (s *RedeemService) DeleteCode(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutateCode(ctx, id, func(tx repository.DBTX, _ *domain.RedeemCode) error {
		return s.redeem.DeleteCode(ctx, tx, id)
	})
	return err
}

func (s *RedeemService) mutateCode(ctx context.Context, id uuid.UUID, fn func(repository.DBTX, *domain.RedeemCode) error) (*domain.RedeemCode, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	rc, err := s.redeem.LockCodeByID(ctx, tx, id)
	if err != nil {
		return nil, domain.ErrInternal("lock redeem code", err)
	}
	if rc == nil {
		return nil, domain.ErrNotFound("redeem code", id.String())
	}
	if rc.Status == domain.CodeUsed {
		return nil, domain.ErrConflict("redeem code already used")
	}
	if err := fn(tx, rc); err != nil {
		return nil, internalErr("update redeem code", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}
	return rc, nil
}

// ListCodes returns codes newest first, optionally filtered by status.
func (s *RedeemService) ListCodes(ctx context.Context, status *domain.RedeemCodeStatus, page repository.Page) ([]domain.RedeemCode, error) {
	codes, err := s.redeem.ListCodes(ctx, s.pool, status, page)
	if err != nil {
		return nil, domain.ErrInternal("list redeem codes", err)
	}
	return codes, nil
}

// CreateCard adds a purchasable card to the catalog.
func (s *RedeemService) CreateCard(ctx context.Context, adminID uuid.UUID, amount decimal.Decimal, description string) (*domain.RedeemCard, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	description = strings.TrimSpace(description)
	if len(description) > maxDescriptionSz {
		return nil, domain.ErrValidation("description too long")
	}

	card := &domain.RedeemCard{
		ID:          uuid.New(),
		Amount:      amount,
		Description: description,
		Status:      domain.CodeActive,
		CreatedBy:   &adminID,
	}
	if err := s.redeem.InsertCard(ctx, s.pool, card); err != nil {
		return nil, domain.ErrInternal("insert redeem card", err)
	}
	return card, nil
}

// ListActiveCards returns the cards a customer can buy.
func (s *RedeemService) ListActiveCards(ctx context.Context) ([]domain.RedeemCard, error) {
	active := domain.CodeActive
	return s.ListCards(ctx, &active)
}

// ListCards returns cards, optionally filtered by status.
func (s *RedeemService) ListCards(ctx context.Context, status *domain.RedeemCodeStatus) ([]domain.RedeemCard, error) {
	cards, err := s.redeem.ListCards(ctx, s.pool, status)
	if err != nil {
		return nil, domain.ErrInternal("list redeem cards", err)
	}
	return cards, nil
}

// UpdateCardStatus activates or expires an unused card.
func (s *RedeemService) UpdateCardStatus(ctx context.Context, id uuid.UUID, status domain.RedeemCodeStatus) (*domain.RedeemCard, error) {
	if err := settableStatus(status); err != nil {
		return nil, err
	}
	return s.mutateCard(ctx, id, func(tx repository.DBTX, card *domain.RedeemCard) error {
		if err := s.redeem.UpdateCardStatus(ctx, tx, id, status); err != nil {
			return err
		}
		card.Status = status
		return nil
	})
}

// DeleteCard removes an unused card.
func (s *RedeemService) DeleteCard(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutateCard(ctx, id, func(tx repository.DBTX, _ *domain.RedeemCard) error {
		return s.redeem.DeleteCard(ctx, tx, id)
	})
	return err
}

func (s *RedeemService) mutateCard(ctx context.Context, id uuid.UUID, fn func(repository.DBTX, *domain.RedeemCard) error) (*domain.RedeemCard, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	card, err := s.redeem.LockCard(ctx, tx, id)
	if err != nil {
		return nil, domain.ErrInternal("lock redeem card", err)
	}
	if card == nil {
		return nil, domain.ErrNotFound("redeem card", id.String())
	}
	if card.Status == domain.CodeUsed {
		return nil, domain.ErrConflict("redeem card already used")
	}
	if err := fn(tx, card); err != nil {
		return nil, internalErr("update redeem card", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}
	return card, nil
}

// consumeCard flips an active card to used by buyerID and issues a fresh
// code of the card's amount. It runs inside the settlement transaction.
func (s *RedeemService) consumeCard(ctx context.Context, tx pgx.Tx, cardID, buyerID uuid.UUID) (*domain.RedeemCode, error) {
	card, err := s.redeem.LockCard(ctx, tx, cardID)
	if err != nil {
		return nil, domain.ErrInternal("lock redeem card", err)
	}
	if card == nil {
		return nil, domain.ErrNotFound("redeem card", cardID.String())
	}
	if card.Status != domain.CodeActive {
		return nil, domain.ErrConflict("redeem card is no longer available")
	}
	if err := s.redeem.MarkCardUsed(ctx, tx, card.ID, buyerID); err != nil {
		return nil, internalErr("mark card used", err)
	}

	code, err := s.issueCode(ctx, tx, domain.DefaultCodePrefix, card.Amount, card.CreatedBy, s.defaultExpiry())
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewRedeemEvent(domain.EventRedeemCardUsed, card.ID, buyerID, card.Amount.StringFixed(2))); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}
	return code, nil
}
