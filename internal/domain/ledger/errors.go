package ledger

import "errors"

var (
	// ErrWorkspaceNotFound is returned when the balance row does not exist
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrInvalidSource is returned for a source outside the closed set
	ErrInvalidSource = errors.New("invalid transaction source")

	// ErrRetriesExhausted is returned when balance-update contention outlasts
	// the caller's retry budget; nothing has been applied
	ErrRetriesExhausted = errors.New("balance update retries exhausted")

	ErrInternal = errors.New("internal error")
)
