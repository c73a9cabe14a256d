package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/guard"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/shopspring/decimal"
)

// SignatureHeader carries the webhook signature: t=<unix>,v1=<hex hmac>.
const SignatureHeader = "X-Gateway-Signature"

// SignatureTolerance is the allowed clock skew of a signed webhook in
// either direction.
const SignatureTolerance = 5 * time.Minute

// Webhook event names.
const (
	EventPaymentSuccess   = "payment.success"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
)

// Gateway is the payment gateway adapter.
type Gateway interface {
	Initialize(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Verify(ctx context.Context, paymentID string) (*VerifyResult, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

// CheckoutRequest opens a hosted checkout session.
type CheckoutRequest struct {
	Type        domain.PaymentType `json:"type"`
	UserID      string             `json:"userId,omitempty"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	Description string             `json:"description"`
	SuccessURL  string             `json:"successUrl"`
	CancelURL   string             `json:"cancelUrl"`
	WebhookURL  string             `json:"webhookUrl"`
}

// CheckoutSession is the gateway's response to Initialize.
type CheckoutSession struct {
	PaymentID   string `json:"paymentId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// VerifyResult is the gateway's view of a payment.
type VerifyResult struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	TrxID     string `json:"trxID,omitempty"`
}

// Outcome maps the gateway status onto a final outcome. ok is false while
// the payment is still open.
func (v *VerifyResult) Outcome() (domain.Outcome, bool) {
	switch strings.ToLower(v.Status) {
	case "success", "completed":
		return domain.OutcomeSuccess, true
	case "failed":
		return domain.OutcomeFailed, true
	case "cancelled", "canceled":
		return domain.OutcomeCancelled, true
	}
	return "", false
}

// WebhookEvent is the verified body of an inbound webhook.
type WebhookEvent struct {
	Event     string `json:"event"`
	PaymentID string `json:"paymentId"`
	TrxID     string `json:"trxID,omitempty"`
}

// Outcome maps the webhook event name onto an outcome.
func (e *WebhookEvent) Outcome() (domain.Outcome, bool) {
	switch e.Event {
	case EventPaymentSuccess:
		return domain.OutcomeSuccess, true
	case EventPaymentFailed:
		return domain.OutcomeFailed, true
	case EventPaymentCancelled:
		return domain.OutcomeCancelled, true
	}
	return "", false
}

// HTTPGateway talks to the gateway's JSON API.
type HTTPGateway struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
	breaker       *guard.CircuitBreaker
	now           func() time.Time
}

// NewHTTPGateway creates a gateway client. Calls go through breaker keyed
// by operation.
func NewHTTPGateway(baseURL, apiKey, webhookSecret string, timeout time.Duration, breaker *guard.CircuitBreaker) *HTTPGateway {
	return &HTTPGateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: timeout},
		breaker:       breaker,
		now:           time.Now,
	}
}

// Initialize creates a hosted checkout session.
func (g *HTTPGateway) Initialize(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := g.call(ctx, "initialize", "/api/checkout", req, &session); err != nil {
		return nil, err
	}
	if session.PaymentID == "" || session.CheckoutURL == "" {
		return nil, domain.ErrExternalService("gateway returned an incomplete checkout session", nil)
	}
	return &session, nil
}

// Verify asks the gateway for the current state of paymentID.
func (g *HTTPGateway) Verify(ctx context.Context, paymentID string) (*VerifyResult, error) {
	var res VerifyResult
	body := map[string]string{"paymentId": paymentID}
	if err := g.call(ctx, "verify", "/api/verify", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (g *HTTPGateway) call(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	start := g.now()
	err = g.breaker.Do(ctx, "gateway."+op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return domain.ErrExternalService("gateway "+op+" unreachable", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return domain.ErrExternalService(fmt.Sprintf("gateway %s error (status %d): %s", op, resp.StatusCode, msg), nil)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.ErrExternalService("decode gateway "+op+" response", err)
		}
		return nil
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	infra.GatewayLatency.WithLabelValues(op, result).Observe(g.now().Sub(start).Seconds())
	return err
}

// VerifyWebhook checks the signature header against the raw body and
// returns the parsed event.
func (g *HTTPGateway) VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, domain.ErrExternalService("webhook secret not configured", nil)
	}

	// t=timestamp,v1=signature
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return nil, domain.ErrUnauthorized("invalid signature header format")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid signature timestamp")
	}
	skew := g.now().Sub(time.Unix(ts, 0))
	if skew > SignatureTolerance {
		return nil, domain.ErrUnauthorized("webhook timestamp too old")
	}
	if skew < -SignatureTolerance {
		return nil, domain.ErrUnauthorized("webhook timestamp in the future")
	}

	expected := sign(g.webhookSecret, timestamp, payload)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, domain.ErrUnauthorized("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrValidation("malformed webhook body")
	}
	if event.PaymentID == "" {
		return nil, domain.ErrValidation("webhook is missing paymentId")
	}
	return &event, nil
}

// SignWebhook builds a signature header value for payload at time at.
func SignWebhook(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, sign(secret, ts, payload))
}

func sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}
