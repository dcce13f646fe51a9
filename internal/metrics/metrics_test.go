package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("POST /targetzones/purchases", "insufficient_balance"))
	Observe("POST /targetzones/purchases", "insufficient_balance")
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("POST /targetzones/purchases", "insufficient_balance"))
	assert.Equal(t, before+1, after)
}
