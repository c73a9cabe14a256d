//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/handler"
	"github.com/gamemart/ledger/internal/provider"
	"github.com/gamemart/ledger/internal/service"
	"github.com/gamemart/ledger/test/integration/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verify(t *testing.T, env *testutil.TestEnv, paymentID, token string) service.VerifyResult {
	t.Helper()
	resp := env.Do(http.MethodGet, "/payments/"+paymentID+"/verify", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out service.VerifyResult
	testutil.DecodeJSON(t, resp, &out)
	return out
}

// ─── Initialize ────────────────────────────────────────────────────────────

func TestInitialize_WalletTopupRecordsPendingPayment(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")

	resp := env.POST("/payments", map[string]interface{}{"type": "wallet_topup", "amount": "250"}, env.Token(user))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out service.InitializeResult
	testutil.DecodeJSON(t, resp, &out)
	assert.NotEmpty(t, out.PaymentID)
	assert.Contains(t, out.CheckoutURL, out.PaymentID)

	assert.Equal(t, "pending", env.PaymentStatus(out.PaymentID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, out.PaymentID, string(domain.EventPaymentInitialized)))
	testutil.AssertBalance(t, env, user.ID, "0")
}

func TestInitialize_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	token := env.Token(user)

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"unknown type", map[string]interface{}{"type": "lottery", "amount": "10"}, http.StatusBadRequest},
		{"zero amount", map[string]interface{}{"type": "wallet_topup", "amount": "0"}, http.StatusBadRequest},
		{"three decimals", map[string]interface{}{"type": "redeem_code", "amount": "1.005"}, http.StatusBadRequest},
		{"order without id", map[string]interface{}{"type": "order"}, http.StatusBadRequest},
		{"unknown order", map[string]interface{}{"type": "order", "order_id": uuid.New()}, http.StatusNotFound},
		{"unknown card", map[string]interface{}{"type": "redeem_card", "card_id": uuid.New()}, http.StatusNotFound},
		{"registration via payments", map[string]interface{}{"type": "reseller_registration"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.POST("/payments", tt.body, token)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, env.CountRows("SELECT COUNT(*) FROM payments"))
}

func TestInitialize_OrderMustBeAwaitingPayment(t *testing.T) {
	env := testutil.NewTestEnv(t)
	customer := env.CreateUser(domain.RoleCustomer, "0")
	order := env.CreatePendingOrder(customer.ID, nil, "90", "90")
	token := env.Token(customer)

	paymentID := env.InitPayment(token, map[string]interface{}{"type": "order", "order_id": order.ID})
	resp := env.SendWebhook(provider.EventPaymentSuccess, paymentID, "trx-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.POST("/payments", map[string]interface{}{"type": "order", "order_id": order.ID}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestInitialize_OneOpenCheckoutPerOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	customer := env.CreateUser(domain.RoleCustomer, "0")
	order := env.CreatePendingOrder(customer.ID, nil, "90", "90")
	token := env.Token(customer)
	body := map[string]interface{}{"type": "order", "order_id": order.ID}

	env.InitPayment(token, body)
	resp := env.POST("/payments", body, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeConflict)

	assert.Equal(t, 1, env.CountRows("SELECT COUNT(*) FROM payments WHERE order_id = $1", order.ID))
}

func TestInitialize_ConcurrentCheckoutsForOneOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	customer := env.CreateUser(domain.RoleCustomer, "0")
	order := env.CreatePendingOrder(customer.ID, nil, "90", "90")
	token := env.Token(customer)

	const racers = 6
	statuses := make([]int, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := env.POST("/payments", map[string]interface{}{"type": "order", "order_id": order.ID}, token)
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range statuses {
		if code == http.StatusCreated {
			created++
			continue
		}
		assert.Equal(t, http.StatusConflict, code)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM payments WHERE order_id = $1 AND status = 'pending'", order.ID))
}

func TestInitialize_OrderOfAnotherCustomer(t *testing.T) {
	env := testutil.NewTestEnv(t)
	owner := env.CreateUser(domain.RoleCustomer, "0")
	other := env.CreateUser(domain.RoleCustomer, "0")
	order := env.CreatePendingOrder(owner.ID, nil, "90", "90")

	resp := env.POST("/payments", map[string]interface{}{"type": "order", "order_id": order.ID}, env.Token(other))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInitialize_IdempotencyKey(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	token := env.Token(user)

	send := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/payments",
			jsonBody(t, map[string]interface{}{"type": "wallet_topup", "amount": "10"}))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(handler.IdempotencyKeyHeader, "topup-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	env.Gateway.FailNextCheckout()
	resp := send()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeExternalService)

	// The failed attempt released the key.
	resp = send()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = send()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 1, env.CountRows("SELECT COUNT(*) FROM payments"))
}

// ─── Verify ────────────────────────────────────────────────────────────────

func TestVerify_PendingReturnsCheckoutURL(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	token := env.Token(user)
	paymentID := env.InitPayment(token, map[string]interface{}{"type": "wallet_topup", "amount": "40"})

	out := verify(t, env, paymentID, token)
	assert.Equal(t, domain.PaymentStatusPending, out.Status)
	assert.NotEmpty(t, out.CheckoutURL)
	assert.Empty(t, out.RedirectURL)
	assert.Equal(t, int64(1), env.Gateway.VerifyCalls())
}

func TestVerify_PollSettlesPayment(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	token := env.Token(user)
	paymentID := env.InitPayment(token, map[string]interface{}{"type": "wallet_topup", "amount": "40"})

	env.Gateway.SetStatus(paymentID, "success", "trx-poll")
	out := verify(t, env, paymentID, token)
	assert.Equal(t, domain.PaymentStatusCompleted, out.Status)
	assert.Equal(t, testutil.TestFrontendURL+"/payment/success?type=wallet_topup", out.RedirectURL)
	testutil.AssertBalance(t, env, user.ID, "40")

	// Settled payments are answered from the database.
	verify(t, env, paymentID, token)
	assert.Equal(t, int64(1), env.Gateway.VerifyCalls())
	testutil.AssertBalance(t, env, user.ID, "40")
}

func TestVerify_OtherUsersPaymentIsHidden(t *testing.T) {
	env := testutil.NewTestEnv(t)
	owner := env.CreateUser(domain.RoleCustomer, "0")
	other := env.CreateUser(domain.RoleCustomer, "0")
	paymentID := env.InitPayment(env.Token(owner), map[string]interface{}{"type": "wallet_topup", "amount": "40"})

	resp := env.Do(http.MethodGet, "/payments/"+paymentID+"/verify", nil, env.Token(other))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2 := env.GET("/payments/" + paymentID + "/verify")
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

// ─── Purchase flows ────────────────────────────────────────────────────────

func TestOrderPayment_SuccessMovesOrderToProcessing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	customer := env.CreateUser(domain.RoleCustomer, "0")
	reseller, _ := env.CreateReseller("100", "0", "100")
	order := env.CreatePendingOrder(customer.ID, &reseller.ID, "120", "100")

	paymentID := env.InitPayment(env.Token(customer), map[string]interface{}{"type": "order", "order_id": order.ID})
	resp := env.SendWebhook(provider.EventPaymentSuccess, paymentID, "trx-order")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	status, payStatus := env.OrderStatus(order.ID)
	assert.Equal(t, "processing", status)
	assert.Equal(t, "paid", payStatus)
	assert.Equal(t, "completed", env.PaymentStatus(paymentID))
	// A gateway-paid order does not touch the reseller wallet.
	testutil.AssertBalance(t, env, reseller.ID, "100")
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, paymentID, string(domain.EventPaymentSettled)))
}

func TestOrderPayment_FailureOutcomes(t *testing.T) {
	tests := []struct {
		event         string
		orderStatus   string
		paymentStatus string
		redirect      string
		cancelled     bool
	}{
		{provider.EventPaymentFailed, "failed", "failed", "/payment/failed?type=order&orderId=", false},
		{provider.EventPaymentCancelled, "cancelled", "cancelled", "/payment/cancelled?type=order&orderId=", true},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			env := testutil.NewTestEnv(t)
			customer := env.CreateUser(domain.RoleCustomer, "0")
			order := env.CreatePendingOrder(customer.ID, nil, "60", "60")
			token := env.Token(customer)

			paymentID := env.InitPayment(token, map[string]interface{}{"type": "order", "order_id": order.ID})
			resp := env.SendWebhook(tt.event, paymentID, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			resp.Body.Close()

			status, payStatus := env.OrderStatus(order.ID)
			assert.Equal(t, tt.orderStatus, status)
			assert.Equal(t, tt.paymentStatus, payStatus)
			assert.Equal(t, "failed", env.PaymentStatus(paymentID))

			meta := env.PaymentMetadata(paymentID)
			if tt.cancelled {
				assert.Equal(t, true, meta["cancelled"])
				assert.NotEmpty(t, meta["cancelledAt"])
			} else {
				assert.Nil(t, meta["cancelled"])
			}

			out := verify(t, env, paymentID, token)
			assert.Equal(t, testutil.TestFrontendURL+tt.redirect+order.ID.String(), out.RedirectURL)
		})
	}
}

func TestRedeemCodePurchase_IssuesRedeemableCode(t *testing.T) {
	env := testutil.NewTestEnv(t)
	buyer := env.CreateUser(domain.RoleCustomer, "0")
	token := env.Token(buyer)

	paymentID := env.InitPayment(token, map[string]interface{}{"type": "redeem_code", "amount": "80"})
	resp := env.SendWebhook(provider.EventPaymentSuccess, paymentID, "trx-code")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	meta := env.PaymentMetadata(paymentID)
	code, _ := meta["issuedCode"].(string)
	require.Regexp(t, `^GMP-[A-Z0-9]{8}$`, code)
	assert.Equal(t, "active", env.CodeStatus(code))

	// The purchase is recorded as a completed receipt order carrying the code.
	var orders []domain.Order
	testutil.DecodeJSON(t, env.AuthGET("/orders", token), &orders)
	require.Len(t, orders, 1)
	receipt := orders[0]
	assert.Equal(t, domain.OrderCompleted, receipt.Status)
	assert.Equal(t, domain.OrderPaid, receipt.PaymentStatus)
	require.NotNil(t, receipt.RedeemCode)
	assert.Equal(t, code, *receipt.RedeemCode)
	require.NotNil(t, receipt.RedeemStatus)
	assert.Equal(t, domain.RedeemPending, *receipt.RedeemStatus)

	// No wallet movement until the code is redeemed.
	testutil.AssertBalance(t, env, buyer.ID, "0")

	resp = env.POST("/redeem", map[string]string{"code": code}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	testutil.AssertBalance(t, env, buyer.ID, "80")
	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM orders WHERE id = $1 AND redeem_status = 'used'", receipt.ID))
}

func TestRedeemCardPurchase_ConsumesCard(t *testing.T) {
	env := testutil.NewTestEnv(t)
	buyer := env.CreateUser(domain.RoleCustomer, "0")
	card := env.CreateRedeemCard("150")
	token := env.Token(buyer)

	paymentID := env.InitPayment(token, map[string]interface{}{"type": "redeem_card", "card_id": card.ID})
	resp := env.SendWebhook(provider.EventPaymentSuccess, paymentID, "trx-card")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM redeem_cards WHERE id = $1 AND status = 'used' AND used_by = $2", card.ID, buyer.ID))
	code, _ := env.PaymentMetadata(paymentID)["issuedCode"].(string)
	require.NotEmpty(t, code)
	assert.Equal(t, 1, env.CountRows("SELECT COUNT(*) FROM redeem_codes WHERE code = $1 AND amount = 150", code))
	testutil.AssertBalance(t, env, buyer.ID, "0")

	// A sold card cannot be bought again.
	resp = env.POST("/payments", map[string]interface{}{"type": "redeem_card", "card_id": card.ID}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// Two buyers open checkouts for the same card; the loser's payment still
// completes but records why nothing was delivered.
func TestRedeemCardPurchase_LosingBuyerGetsSettlementError(t *testing.T) {
	env := testutil.NewTestEnv(t)
	first := env.CreateUser(domain.RoleCustomer, "0")
	second := env.CreateUser(domain.RoleCustomer, "0")
	card := env.CreateRedeemCard("150")

	p1 := env.InitPayment(env.Token(first), map[string]interface{}{"type": "redeem_card", "card_id": card.ID})
	p2 := env.InitPayment(env.Token(second), map[string]interface{}{"type": "redeem_card", "card_id": card.ID})

	for _, id := range []string{p1, p2} {
		resp := env.SendWebhook(provider.EventPaymentSuccess, id, "trx-"+id)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	assert.Equal(t, "completed", env.PaymentStatus(p1))
	assert.Equal(t, "completed", env.PaymentStatus(p2))

	loser := env.PaymentMetadata(p2)
	assert.NotEmpty(t, loser["settlementError"])
	assert.Nil(t, loser["issuedCode"])
	assert.Equal(t, 1, env.CountRows("SELECT COUNT(*) FROM redeem_codes"))
}

// ─── Reseller registration ─────────────────────────────────────────────────

func registrationBody(email, subdomain string) map[string]interface{} {
	return map[string]interface{}{
		"name":       "Neon Games",
		"email":      email,
		"password":   "correct-horse-battery",
		"store_name": "Neon Games Store",
		"subdomain":  subdomain,
	}
}

func TestRegisterReseller_SettlementCreatesPendingAccount(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")

	resp := env.POST("/resellers/register", registrationBody("Owner@Neon.test", "neon-games"), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out service.InitializeResult
	testutil.DecodeJSON(t, resp, &out)

	// Anonymous polling works before the account exists.
	pending := verify(t, env, out.PaymentID, "")
	assert.Equal(t, domain.PaymentStatusPending, pending.Status)
	assert.Equal(t, 0, env.CountRows("SELECT COUNT(*) FROM users WHERE role = 'reseller'"))

	resp = env.SendWebhook(provider.EventPaymentSuccess, out.PaymentID, "trx-reg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM users WHERE email = 'owner@neon.test' AND role = 'reseller' AND status = 'pending' AND password_hash <> ''"))
	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM stores WHERE subdomain = 'neon-games'"))

	// The stored payment no longer carries the password hash.
	detailResp := env.AuthGET("/admin/payments/"+out.PaymentID, env.Token(admin))
	require.Equal(t, http.StatusOK, detailResp.StatusCode)
	var detail struct {
		Payment struct {
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"payment"`
		Events []domain.PaymentEvent `json:"events"`
	}
	testutil.DecodeJSON(t, detailResp, &detail)
	reg, _ := detail.Payment.Metadata["registration"].(map[string]interface{})
	require.NotNil(t, reg)
	assert.NotContains(t, reg, "password_hash")
	assert.Len(t, detail.Events, 2)
	assert.Equal(t, 1, env.CountRows(
		`SELECT COUNT(*) FROM payments WHERE payment_id = $1 AND NOT (metadata->'registration' ? 'password_hash')`, out.PaymentID))

	// Approval activates the account.
	var resellerID uuid.UUID
	require.NoError(t, env.Pool.QueryRow(t.Context(),
		"SELECT id FROM users WHERE email = 'owner@neon.test'").Scan(&resellerID))
	resp = env.AuthPATCH("/admin/users/"+resellerID.String()+"/status", map[string]string{"status": "active"}, env.Token(admin))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterReseller_DuplicateEmailOrSubdomain(t *testing.T) {
	env := testutil.NewTestEnv(t)
	existing, store := env.CreateReseller("0", "0", "100")

	resp := env.POST("/resellers/register", registrationBody(existing.Email, "fresh-store"), "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.POST("/resellers/register", registrationBody("new@neon.test", store.Subdomain), "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.POST("/resellers/register", registrationBody("not-an-email", "fresh-store"), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 0, env.CountRows("SELECT COUNT(*) FROM payments"))
}

// Two registrations for the same subdomain can both reach checkout; the
// second to settle completes with a settlement error instead of an account.
func TestRegisterReseller_RaceForSubdomain(t *testing.T) {
	env := testutil.NewTestEnv(t)

	var ids []string
	for _, email := range []string{"a@neon.test", "b@neon.test"} {
		resp := env.POST("/resellers/register", registrationBody(email, "contested"), "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var out service.InitializeResult
		testutil.DecodeJSON(t, resp, &out)
		ids = append(ids, out.PaymentID)
	}

	for _, id := range ids {
		resp := env.SendWebhook(provider.EventPaymentSuccess, id, "trx-"+id)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	assert.Equal(t, 1, env.CountRows("SELECT COUNT(*) FROM stores WHERE subdomain = 'contested'"))
	assert.Equal(t, 1, env.CountRows("SELECT COUNT(*) FROM users WHERE role = 'reseller'"))
	assert.NotEmpty(t, env.PaymentMetadata(ids[1])["settlementError"])
	assert.Equal(t, 0, env.CountRows(
		`SELECT COUNT(*) FROM payments WHERE metadata->'registration' ? 'password_hash'`))
}

func TestRegisterReseller_UnsuccessfulPaymentDropsPasswordHash(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{"failed", provider.EventPaymentFailed},
		{"cancelled", provider.EventPaymentCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewTestEnv(t)

			resp := env.POST("/resellers/register", registrationBody("late@neon.test", "late-store"), "")
			require.Equal(t, http.StatusCreated, resp.StatusCode)
			var out service.InitializeResult
			testutil.DecodeJSON(t, resp, &out)
			assert.Equal(t, 1, env.CountRows(
				`SELECT COUNT(*) FROM payments WHERE payment_id = $1 AND metadata->'registration' ? 'password_hash'`, out.PaymentID))

			resp = env.SendWebhook(tt.event, out.PaymentID, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			resp.Body.Close()

			assert.Equal(t, "failed", env.PaymentStatus(out.PaymentID))
			assert.Equal(t, 0, env.CountRows(
				`SELECT COUNT(*) FROM payments WHERE payment_id = $1 AND metadata->'registration' ? 'password_hash'`, out.PaymentID))
			assert.Equal(t, 0, env.CountRows("SELECT COUNT(*) FROM users WHERE email = 'late@neon.test'"))
		})
	}
}
