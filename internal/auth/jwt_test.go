package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour)
}

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()

	token, err := mgr.GenerateToken(userID, "reseller@test.com", domain.RoleReseller)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, domain.RoleReseller, claims.Role)
	assert.Equal(t, "reseller@test.com", claims.Email)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, id)
}

func TestGenerateToken_UnknownRole(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(uuid.New(), "", domain.Role("superuser"))
	assert.Error(t, err)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", time.Hour)
	mgr2 := NewJWTManager("secret-2", time.Hour)

	token, err := mgr1.GenerateToken(uuid.New(), "", domain.RoleCustomer)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", time.Millisecond)

	token, err := mgr.GenerateToken(uuid.New(), "", domain.RoleCustomer)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func okHandler(t *testing.T, wantID uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantID, UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticate(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()
	token, err := mgr.GenerateToken(userID, "", domain.RoleCustomer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Authenticate(mgr)(okHandler(t, userID)).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthenticateQuery(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()
	token, err := mgr.GenerateToken(userID, "", domain.RoleCustomer)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	AuthenticateQuery(mgr)(okHandler(t, userID)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	AuthenticateQuery(mgr)(okHandler(t, userID)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthenticate(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()
	token, err := mgr.GenerateToken(userID, "", domain.RoleCustomer)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	OptionalAuthenticate(mgr)(okHandler(t, uuid.Nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/p1/verify", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "anonymous passes through")

	req := httptest.NewRequest(http.MethodGet, "/payments/p1/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	OptionalAuthenticate(mgr)(okHandler(t, userID)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/payments/p1/verify", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	OptionalAuthenticate(mgr)(okHandler(t, userID)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()

	tests := []struct {
		role domain.Role
		want int
	}{
		{domain.RoleAdmin, http.StatusNoContent},
		{domain.RoleReseller, http.StatusForbidden},
		{domain.RoleCustomer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			token, err := mgr.GenerateToken(userID, "", tt.role)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPatch, "/admin/orders/x/status", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			Authenticate(mgr)(RequireRole(domain.RoleAdmin)(okHandler(t, userID))).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRole_NoClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(okHandler(t, uuid.Nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.CodeUnauthorized)
}
