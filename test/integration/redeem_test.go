//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/provider"
	"github.com/gamemart/ledger/internal/service"
	"github.com/gamemart/ledger/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Redemption ────────────────────────────────────────────────────────────

func TestRedeem_CreditsOnceThenRejects(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	env.CreateRedeemCode("GMP-ABC12345", "50", time.Now().Add(30*24*time.Hour))
	token := env.Token(user)

	resp := env.POST("/redeem", map[string]string{"code": "GMP-ABC12345"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result service.RedeemResult
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "GMP-ABC12345", result.Code)
	assert.Equal(t, "50", result.Amount.String())
	assert.Equal(t, "50", result.Balance.String())

	testutil.AssertBalance(t, env, user.ID, "50")
	assert.Equal(t, "used", env.CodeStatus("GMP-ABC12345"))

	resp = env.POST("/redeem", map[string]string{"code": "GMP-ABC12345"}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	testutil.AssertBalance(t, env, user.ID, "50")
	assert.Equal(t, 1, testutil.CountWalletTransactions(t, env, user.ID))
}

func TestRedeem_NormalizesInput(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	env.CreateRedeemCode("GMP-LOWER123", "20", time.Now().Add(time.Hour))

	resp := env.POST("/redeem", map[string]string{"code": "  gmp-lower123 "}, env.Token(user))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.AssertBalance(t, env, user.ID, "20")
}

func TestRedeem_Rejections(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")
	env.CreateRedeemCode("GMP-EXPIRED1", "20", time.Now().Add(-time.Minute))
	token := env.Token(user)

	tests := []struct {
		name string
		code string
		want int
		errc string
	}{
		{"unknown", "GMP-NOPE0000", http.StatusNotFound, domain.CodeNotFound},
		{"expired", "GMP-EXPIRED1", http.StatusGone, domain.CodeExpired},
		{"empty", "   ", http.StatusBadRequest, domain.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.POST("/redeem", map[string]string{"code": tt.code}, token)
			assert.Equal(t, tt.want, resp.StatusCode)
			testutil.AssertErrorCode(t, resp, tt.errc)
		})
	}
	testutil.AssertBalance(t, env, user.ID, "0")
	assert.Equal(t, "active", env.CodeStatus("GMP-EXPIRED1"))
}

func TestRedeem_ConcurrentSingleUse(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.CreateRedeemCode("GMP-RACE0001", "75", time.Now().Add(time.Hour))

	const racers = 8
	users := make([]*domain.User, racers)
	for i := range users {
		users[i] = env.CreateUser(domain.RoleCustomer, "0")
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, u := range users {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			resp := env.POST("/redeem", map[string]string{"code": "GMP-RACE0001"}, token)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(env.Token(u))
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM wallet_transactions WHERE related_type = 'redeem_code'"))
	assert.Equal(t, 1, env.CountRows(
		"SELECT COUNT(*) FROM users WHERE wallet_balance = 75"))
}

// ─── Admin code management ─────────────────────────────────────────────────

func TestAdminGenerateCodes(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	token := env.Token(admin)

	resp := env.POST("/admin/redeem-codes", map[string]interface{}{
		"count":           5,
		"amount":          "100",
		"expires_in_days": 7,
		"prefix":          "promo",
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var codes []domain.RedeemCode
	testutil.DecodeJSON(t, resp, &codes)
	require.Len(t, codes, 5)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, `^PROMO-[A-Z0-9]{8}$`, c.Code)
		assert.Equal(t, domain.CodeActive, c.Status)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), c.ExpiresAt, time.Minute)
		seen[c.Code] = true
	}
	assert.Len(t, seen, 5)

	var listed []domain.RedeemCode
	testutil.DecodeJSON(t, env.AuthGET("/admin/redeem-codes?status=active", token), &listed)
	assert.Len(t, listed, 5)
}

func TestAdminGenerateCodes_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")

	resp := env.POST("/admin/redeem-codes", map[string]interface{}{"count": 0, "amount": "10"}, env.Token(admin))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, env.CountRows("SELECT COUNT(*) FROM redeem_codes"))
}

func TestAdminCodeStatus_UsedCodeIsFrozen(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	user := env.CreateUser(domain.RoleCustomer, "0")
	code := env.CreateRedeemCode("GMP-FROZEN01", "10", time.Now().Add(time.Hour))
	adminToken := env.Token(admin)
	path := fmt.Sprintf("/admin/redeem-codes/%s", code.ID)

	resp := env.AuthPATCH(path, map[string]string{"status": "used"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "used is not admin-settable")
	resp.Body.Close()

	resp = env.POST("/redeem", map[string]string{"code": code.Code}, env.Token(user))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthPATCH(path, map[string]string{"status": "active"}, adminToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthDELETE(path, adminToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminCardStatus_SoldCardIsFrozen(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	buyer := env.CreateUser(domain.RoleCustomer, "0")
	card := env.CreateRedeemCard("150")
	adminToken := env.Token(admin)
	path := fmt.Sprintf("/admin/redeem-cards/%s", card.ID)

	paymentID := env.InitPayment(env.Token(buyer), map[string]interface{}{"type": "redeem_card", "card_id": card.ID})
	resp := env.SendWebhook(provider.EventPaymentSuccess, paymentID, "trx-card-frozen")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	soldCard := "SELECT COUNT(*) FROM redeem_cards WHERE id = $1 AND status = 'used' AND used_by = $2"
	require.Equal(t, 1, env.CountRows(soldCard, card.ID, buyer.ID))

	for _, status := range []string{"active", "expired"} {
		resp = env.AuthPATCH(path, map[string]string{"status": status}, adminToken)
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "patch to %s", status)
		testutil.AssertErrorCode(t, resp, domain.CodeConflict)
	}

	resp = env.AuthDELETE(path, adminToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeConflict)

	assert.Equal(t, 1, env.CountRows(soldCard, card.ID, buyer.ID))
}

func TestAdminCodeStatus_ExpireThenDelete(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	user := env.CreateUser(domain.RoleCustomer, "0")
	code := env.CreateRedeemCode("GMP-EXPIRE02", "10", time.Now().Add(time.Hour))
	adminToken := env.Token(admin)
	path := fmt.Sprintf("/admin/redeem-codes/%s", code.ID)

	resp := env.AuthPATCH(path, map[string]string{"status": "expired"}, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.POST("/redeem", map[string]string{"code": code.Code}, env.Token(user))
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthDELETE(path, adminToken)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, env.CountRows("SELECT COUNT(*) FROM redeem_codes"))
}

// ─── Cards ─────────────────────────────────────────────────────────────────

func TestRedeemCards_CustomerSeesActiveOnly(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	user := env.CreateUser(domain.RoleCustomer, "0")
	adminToken := env.Token(admin)

	resp := env.POST("/admin/redeem-cards", map[string]interface{}{"amount": "200", "description": "Gift 200"}, adminToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var card domain.RedeemCard
	testutil.DecodeJSON(t, resp, &card)

	hidden := env.CreateRedeemCard("500")
	resp = env.AuthPATCH(fmt.Sprintf("/admin/redeem-cards/%s", hidden.ID), map[string]string{"status": "expired"}, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var cards []domain.RedeemCard
	testutil.DecodeJSON(t, env.AuthGET("/redeem-cards", env.Token(user)), &cards)
	require.Len(t, cards, 1)
	assert.Equal(t, card.ID, cards[0].ID)

	var all []domain.RedeemCard
	testutil.DecodeJSON(t, env.AuthGET("/admin/redeem-cards", adminToken), &all)
	assert.Len(t, all, 2)
}
