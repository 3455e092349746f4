package limits

import "errors"

var (
	ErrNotFound         = errors.New("spending limit not found")
	ErrInvalidTimeFrame = errors.New("invalid time frame")
	ErrInvalidAmount    = errors.New("limit amount must be greater than 0")
	ErrInternal         = errors.New("internal error")
)
