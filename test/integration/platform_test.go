//go:build integration

package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/test/integration/testutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Health and metrics ────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsExposed(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/health")
	resp.Body.Close()

	resp = env.GET("/metrics")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	env := testutil.NewTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.Server.URL+"/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://shop.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestExpiredToken(t *testing.T) {
	env := testutil.NewTestEnv(t)
	user := env.CreateUser(domain.RoleCustomer, "0")

	resp := env.AuthGET("/wallet", "not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthGET("/wallet", env.Token(user))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// ─── Notifications ─────────────────────────────────────────────────────────

func TestNotifications_ListAndMarkRead(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	user := env.CreateUser(domain.RoleCustomer, "0")
	token := env.Token(user)

	var empty []domain.Notification
	testutil.DecodeJSON(t, env.AuthGET("/notifications", token), &empty)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	resp := env.POST(fmt.Sprintf("/admin/users/%s/wallet/credit", user.ID),
		map[string]interface{}{"amount": "15"}, env.Token(admin))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var list []domain.Notification
	testutil.DecodeJSON(t, env.AuthGET("/notifications", token), &list)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotifyWallet, list[0].Kind)
	assert.False(t, list[0].Read)

	resp = env.POST("/notifications/"+list[0].ID.String()+"/read", nil, token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	testutil.DecodeJSON(t, env.AuthGET("/notifications", token), &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)

	// Another user's notification looks absent.
	other := env.CreateUser(domain.RoleCustomer, "0")
	resp = env.POST("/notifications/"+list[0].ID.String()+"/read", nil, env.Token(other))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.POST("/notifications/"+uuid.NewString()+"/read", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestNotifications_PushedOverWebSocket(t *testing.T) {
	env := testutil.NewTestEnv(t)
	admin := env.CreateUser(domain.RoleAdmin, "0")
	user := env.CreateUser(domain.RoleCustomer, "0")

	wsURL := "ws" + strings.TrimPrefix(env.Server.URL, "http") + "/ws?token=" + env.Token(user)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// Give the hub a moment to register the connection.
	time.Sleep(100 * time.Millisecond)

	credit := env.POST(fmt.Sprintf("/admin/users/%s/wallet/credit", user.ID),
		map[string]interface{}{"amount": "15"}, env.Token(admin))
	require.Equal(t, http.StatusOK, credit.StatusCode)
	credit.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg struct {
		Event string              `json:"event"`
		Data  domain.Notification `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Event)
	assert.Equal(t, user.ID, msg.Data.UserID)
	assert.Equal(t, domain.NotifyWallet, msg.Data.Kind)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := testutil.NewTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.Server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
