package common

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cases := map[error]string{
		nil:                     "ok",
		ErrNotFound:             "not_found",
		ErrCatchNotVerified:     "invalid_input",
		ErrCatchAlreadyAwarded:  "invalid_input",
		ErrMissingLocation:      "invalid_input",
		ErrInsufficientBalance:  "insufficient_balance",
		ErrConcurrencyConflict:  "concurrency_conflict",
		ErrPreviewQuotaExceeded: "preview_quota_exceeded",
		ErrUpstreamOracle:       "upstream_oracle",
		ErrOperatorDenied:       "operator_denied",
		fmt.Errorf("boom"):      "store_failure",
	}
	for err, want := range cases {
		assert.Equal(t, want, Kind(err), "%v", err)
	}
}

func TestRefinedErrorsUnwrapToBaseKind(t *testing.T) {
	wrapped := fmt.Errorf("award: %w", ErrCatchAlreadyAwarded)
	assert.ErrorIs(t, wrapped, ErrCatchAlreadyAwarded)
	assert.ErrorIs(t, wrapped, ErrInvalidInput)
	assert.NotErrorIs(t, wrapped, ErrCatchNotVerified)
}

func TestDayKeyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-05-01", DayKey(ts, time.UTC))
	assert.Equal(t, "2024-05-02", DayKey(ts, loc))
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, loc), StartOfDay(ts, loc))
}

func TestHoursBetweenClampsNegative(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.0, HoursBetween(now, now.Add(-time.Hour)))
	assert.InDelta(t, 2.0, HoursBetween(now.Add(-2*time.Hour), now), 1e-9)
}

func TestFormatPoints(t *testing.T) {
	assert.Equal(t, "1 point", FormatPoints(1))
	assert.Equal(t, "150 points", FormatPoints(150))
	assert.Equal(t, "+100 points", FormatPointsDelta(100))
	assert.Equal(t, "-50 points", FormatPointsDelta(-50))
	assert.Equal(t, "+0 points", FormatPointsDelta(0))
}
