package metering

import (
	"errors"
	"fmt"

	"github.com/helpmaton/billing-api/internal/domain/limits"
)

var (
	// ErrLimitExceeded means a spending limit refused the reservation. The
	// metered operation must not start; no balance was changed.
	ErrLimitExceeded = errors.New("spending limit exceeded")

	// ErrInsufficientRetries means balance-update contention outlasted the
	// retry budget. No partial debit is left behind.
	ErrInsufficientRetries = errors.New("insufficient retries for balance update")

	// ErrReservationNotFound means the reservation was already settled,
	// refunded, or expired. Settle and refund treat this as a benign no-op.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrPricingUnavailable means neither a raw cost, token counts, nor a
	// generation id were provided; the caller should fall back to refund.
	ErrPricingUnavailable = errors.New("no usable cost data for settlement")

	ErrInternal = errors.New("internal error")
)

// LimitExceededError carries the limits that refused the reservation.
type LimitExceededError struct {
	FailedLimits []limits.Limit
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("spending limit exceeded (%d limit(s) failed)", len(e.FailedLimits))
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}
