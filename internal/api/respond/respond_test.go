package respond

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"cofish.app/core/internal/common"
)

func TestStatus(t *testing.T) {
	cases := map[error]int{
		common.ErrNotAuthenticated:     http.StatusUnauthorized,
		common.ErrNotFound:             http.StatusNotFound,
		common.ErrInsufficientBalance:  http.StatusPaymentRequired,
		common.ErrConcurrencyConflict:  http.StatusConflict,
		common.ErrCatchNotVerified:     http.StatusBadRequest,
		common.ErrPreviewQuotaExceeded: http.StatusTooManyRequests,
		common.ErrOperatorDenied:       http.StatusForbidden,
		common.ErrUpstreamOracle:       http.StatusBadGateway,
		common.ErrStoreFailure:         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, Status(fmt.Errorf("wrapped: %w", err)), "%v", err)
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(c, fmt.Errorf("pg: connection refused: %w", common.ErrStoreFailure))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error","kind":"store_failure"}`, w.Body.String())
}

func TestErrorKeepsClientMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(c, common.ErrCatchAlreadyAwarded)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"catch already awarded","kind":"invalid_input"}`, w.Body.String())
}

func TestPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=5&cursor=10", nil)
	opts, err := Page(c)
	assert.NoError(t, err)
	assert.Equal(t, 5, opts.Limit)
	assert.Equal(t, "10", opts.Cursor)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	opts, err = Page(c)
	assert.NoError(t, err)
	assert.Equal(t, MaxPageLimit, opts.Limit)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err = Page(c)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
