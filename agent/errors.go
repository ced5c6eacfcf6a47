package agent

import "errors"

var (
	ErrModelNotFound    = errors.New("model not found")
	ErrModelExists      = errors.New("model already registered")
	ErrEmptyModelName   = errors.New("model name is empty")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrNoDefaultModel   = errors.New("no default model configured")
	ErrProviderRequired = errors.New("provider is required")
)
