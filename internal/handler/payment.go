package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gamemart/ledger/internal/auth"
	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/guard"
	"github.com/gamemart/ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader lets a client retry POST /payments safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// PaymentService is the payment surface used by PaymentHandler.
type PaymentService interface {
	Initialize(ctx context.Context, in service.InitializeInput) (*service.InitializeResult, error)
	Verify(ctx context.Context, callerID uuid.UUID, role domain.Role, paymentID string) (*service.VerifyResult, error)
}

// PaymentHandler handles gateway payment initialization and polling.
type PaymentHandler struct {
	payments    PaymentService
	idempotency *guard.IdempotencyGuard
	verifyLimit guard.Limiter
	logger      *slog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments PaymentService, idempotency *guard.IdempotencyGuard, verifyLimit guard.Limiter, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:    payments,
		idempotency: idempotency,
		verifyLimit: verifyLimit,
		logger:      logger,
	}
}

// Initialize handles POST /payments.
func (h *PaymentHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in service.InitializeInput
	if err := decodeBody(r, &in); err != nil {
		RespondError(w, err)
		return
	}
	if in.Type == domain.PaymentForResellerRegistration {
		RespondError(w, domain.ErrValidation("use /resellers/register for registration payments"))
		return
	}
	in.UserID = &userID
	in.Registration = nil

	var key string
	if k := r.Header.Get(IdempotencyKeyHeader); k != "" {
		key = userID.String() + ":" + k
	}
	h.initialize(w, r, in, key)
}

// RegisterReseller handles POST /resellers/register. It opens a checkout
// for the registration fee; the account is created once the fee settles.
func (h *PaymentHandler) RegisterReseller(w http.ResponseWriter, r *http.Request) {
	var reg service.RegistrationInput
	if err := decodeBody(r, &reg); err != nil {
		RespondError(w, err)
		return
	}

	var key string
	if k := r.Header.Get(IdempotencyKeyHeader); k != "" {
		key = "register:" + ClientIP(r) + ":" + k
	}
	h.initialize(w, r, service.InitializeInput{
		Type:         domain.PaymentForResellerRegistration,
		Registration: &reg,
	}, key)
}

func (h *PaymentHandler) initialize(w http.ResponseWriter, r *http.Request, in service.InitializeInput, key string) {
	if res := h.idempotency.Check(r.Context(), key); !res.Allowed {
		RespondError(w, domain.ErrConflict(res.Reason))
		return
	}

	result, err := h.payments.Initialize(r.Context(), in)
	if err != nil {
		if key != "" {
			h.idempotency.Remove(key)
		}
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

// Verify handles GET /payments/{paymentId}/verify. Anonymous callers may
// poll registration payments.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var (
		callerID uuid.UUID
		role     domain.Role
		limitKey = "ip:" + ClientIP(r)
	)
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		callerID, _ = claims.UserID()
		role = claims.Role
		limitKey = "user:" + callerID.String()
	}

	if res := h.verifyLimit.Check(r.Context(), limitKey); !res.Allowed {
		h.logger.Warn("verify rate limited", "key", limitKey)
		w.Header().Set("Retry-After", "60")
		RespondJSON(w, http.StatusTooManyRequests, map[string]string{
			"code":    "RATE_LIMITED",
			"message": res.Reason,
		})
		return
	}

	result, err := h.payments.Verify(r.Context(), callerID, role, chi.URLParam(r, "paymentId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
