package chat

import "errors"

// Sentinel errors for chat turns. ErrEmptyMessage and ErrUnknownModel are
// input errors reported before the stream opens.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrUnknownModel = errors.New("unknown model")
	ErrPersistence  = errors.New("failed to save conversation")
)
