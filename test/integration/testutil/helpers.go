//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/provider"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Do sends a request with an optional JSON body and bearer token.
func (env *TestEnv) Do(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodGet, path, nil, "")
}

// POST performs a POST request with a JSON body. token may be empty.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPost, path, body, token)
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodGet, path, nil, token)
}

// AuthPATCH performs an authenticated PATCH request.
func (env *TestEnv) AuthPATCH(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPatch, path, body, token)
}

// AuthPUT performs an authenticated PUT request.
func (env *TestEnv) AuthPUT(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPut, path, body, token)
}

// AuthDELETE performs an authenticated DELETE request.
func (env *TestEnv) AuthDELETE(path, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodDelete, path, nil, token)
}

// RawPOST sends payload as-is with the given headers.
func (env *TestEnv) RawPOST(path string, payload []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(payload))
	if err != nil {
		env.t.Fatalf("RawPOST %s: new request: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}

// SendWebhook posts a correctly signed gateway webhook.
func (env *TestEnv) SendWebhook(event, paymentID, trxID string) *http.Response {
	env.t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"event":     event,
		"paymentId": paymentID,
		"trxID":     trxID,
	})
	return env.RawPOST("/webhooks/gateway", payload, map[string]string{
		"Content-Type":           "application/json",
		provider.SignatureHeader: provider.SignWebhook(TestWebhookSecret, payload, time.Now()),
	})
}

// Token mints a bearer token for u.
func (env *TestEnv) Token(u *domain.User) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(u.ID, u.Email, u.Role)
	if err != nil {
		env.t.Fatalf("Token: %v", err)
	}
	return token
}

func seedCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// CreateUser inserts an active user holding balance in the wallet.
func (env *TestEnv) CreateUser(role domain.Role, balance string) *domain.User {
	env.t.Helper()
	ctx, cancel := seedCtx()
	defer cancel()

	id := uuid.New()
	u := &domain.User{
		ID:     id,
		Email:  fmt.Sprintf("%s-%s@example.com", role, id.String()[:8]),
		Name:   "Test " + string(role),
		Role:   role,
		Status: domain.UserActive,
		Wallet: domain.Wallet{Balance: decimal.RequireFromString(balance), Currency: TestCurrency},
	}
	if err := repository.NewUserRepository().Create(ctx, env.Pool, u); err != nil {
		env.t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// CreateReseller inserts an active reseller and its store with the given
// markup bounds.
func (env *TestEnv) CreateReseller(balance, minMarkup, maxMarkup string) (*domain.User, *domain.Store) {
	env.t.Helper()
	ctx, cancel := seedCtx()
	defer cancel()

	u := env.CreateUser(domain.RoleReseller, balance)
	store := &domain.Store{
		ID:            uuid.New(),
		OwnerID:       u.ID,
		Name:          "Store " + u.ID.String()[:8],
		Subdomain:     "store-" + u.ID.String()[:8],
		MinimumMarkup: decimal.RequireFromString(minMarkup),
		MaximumMarkup: decimal.RequireFromString(maxMarkup),
	}
	if err := repository.NewStoreRepository().Create(ctx, env.Pool, store); err != nil {
		env.t.Fatalf("CreateReseller: %v", err)
	}
	return u, store
}

// CreateVariant inserts an active product with a single variant at price.
func (env *TestEnv) CreateVariant(price string) *domain.ProductVariant {
	env.t.Helper()
	ctx, cancel := seedCtx()
	defer cancel()

	p := &domain.Product{
		ID:       uuid.New(),
		Name:     "Game Credits",
		Active:   true,
		Variants: []domain.ProductVariant{{Name: price + " pack", Price: decimal.RequireFromString(price)}},
	}
	if err := repository.NewProductRepository().Create(ctx, env.Pool, p); err != nil {
		env.t.Fatalf("CreateVariant: %v", err)
	}
	return &p.Variants[0]
}

// CreatePendingOrder inserts a pending, unpaid order directly, bypassing
// catalog pricing. reseller may be nil.
func (env *TestEnv) CreatePendingOrder(customer uuid.UUID, reseller *uuid.UUID, total, cost string) *domain.Order {
	env.t.Helper()
	ctx, cancel := seedCtx()
	defer cancel()

	id := uuid.New()
	o := &domain.Order{
		ID:            id,
		OrderNumber:   domain.NewOrderNumber(time.Now(), strings.ToUpper(id.String()[:6])),
		CustomerID:    customer,
		ResellerID:    reseller,
		Total:         decimal.RequireFromString(total),
		Cost:          decimal.RequireFromString(cost),
		Status:        domain.OrderPending,
		PaymentStatus: domain.OrderUnpaid,
		Items: []domain.OrderItem{{
			SubProductName: "Seeded item",
			Quantity:       1,
			Price:          decimal.RequireFromString(total),
		}},
	}
	if err := repository.NewOrderRepository().Create(ctx, env.Pool, o); err != nil {
		env.t.Fatalf("CreatePendingOrder: %v", err)
	}
	return o
}

// CreateRedeemCode inserts an active code.
func (env *TestEnv) CreateRedeemCode(code, amount string, expiresAt time.Time) *domain.RedeemCode {
	env.t.Helper()
	ctx, cancel := seedCtx()
	defer cancel()

	c := &domain.RedeemCode{
		ID:        uuid.New(),
		Code:      code,
		Amount:    decimal.RequireFromString(amount),
		Status:    domain.CodeActive,
		ExpiresAt: expiresAt,
	}
	inserted, err := repository.NewRedeemRepository().InsertCode(ctx, env.Pool, c)
	if err != nil || !inserted {
		env.t.Fatalf("CreateRedeemCode %s: inserted=%v err=%v", code, inserted, err)
	}
	return c
}

// CreateRedeemCard inserts an active redeem card.
func (env *TestEnv) CreateRedeemCard(amount string) *domain.RedeemCard {
	env.t.Helper()
	ctx, cancel := seedCtx()
	defer cancel()

	c := &domain.RedeemCard{
		ID:          uuid.New(),
		Amount:      decimal.RequireFromString(amount),
		Description: "Gift card",
		Status:      domain.CodeActive,
	}
	if err := repository.NewRedeemRepository().InsertCard(ctx, env.Pool, c); err != nil {
		env.t.Fatalf("CreateRedeemCard: %v", err)
	}
	return c
}

// InitPayment opens a checkout through the API and returns the gateway
// payment id.
func (env *TestEnv) InitPayment(token string, body map[string]interface{}) string {
	env.t.Helper()
	resp := env.Do(http.MethodPost, "/payments", body, token)
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		env.t.Fatalf("InitPayment: status %d: %s", resp.StatusCode, msg)
	}
	var out struct {
		PaymentID string `json:"paymentId"`
	}
	DecodeJSON(env.t, resp, &out)
	return out.PaymentID
}
