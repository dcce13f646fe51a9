package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/auth"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/features/members"
	"cofish.app/core/internal/features/targetzone"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/memstore"
)

type fixture struct {
	router   *gin.Engine
	store    *memstore.Store
	verifier *auth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := memstore.New()
	retry := store.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	l := ledger.NewService(s, retry, 100)
	zones := targetzone.NewService(s, l, nil, targetzone.Settings{Retry: retry})
	v := auth.NewVerifier("test-secret", "")

	r := NewRouter(Options{
		Verifier: v,
		Members:  members.NewHandler(members.NewService(members.NewRepository(s), retry)),
		Features: []Registrar{ledger.NewHandler(l), targetzone.NewHandler(zones)},
	})
	return &fixture{router: r, store: s, verifier: v}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.verifier.Issue(auth.Identity{UserID: userID, Email: userID + "@example.test", DisplayName: "Angler"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", "").Code)
}

func TestV1RequiresToken(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(t, http.MethodGet, "/v1/me", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFirstCallCreatesUser(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u-router")

	w := f.do(t, http.MethodGet, "/v1/me", tok, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		PointsBalance int64  `json:"pointsBalance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "u-router", p.ID)
	assert.Equal(t, "u-router@example.test", p.Email)
	assert.Equal(t, int64(0), p.PointsBalance)

	w = f.do(t, http.MethodGet, "/v1/me/ledger", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPurchaseWithoutPointsIsPaymentRequired(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u-poor")

	w := f.do(t, http.MethodPost, "/v1/targetzones/purchases", tok,
		`{"centerLat":27.7,"centerLng":-82.6,"radiusMiles":2,"baseCostPoints":100}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"insufficient_balance"`)

	w = f.do(t, http.MethodPost, "/v1/targetzones/purchases", tok, `{"centerLat":27.7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/v1/targetzones/purchases", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"next":""}`, w.Body.String())
}

func TestPreviewQuotaOverHTTP(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u-preview")
	body := `{"lat":27.7,"lng":-82.6}`
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, "/v1/targetzones/preview", tok, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"bucket":"NONE"`)
	}
	w := f.do(t, http.MethodPost, "/v1/targetzones/preview", tok, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
