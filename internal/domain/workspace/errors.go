package workspace

import "errors"

var (
	ErrNotFound          = errors.New("workspace not found")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrInvalidName       = errors.New("name is required")
	ErrByokNotConfigured = errors.New("no BYOK key configured for workspace")
	ErrInternal          = errors.New("internal error")
)
