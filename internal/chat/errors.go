package chat

import "errors"

// Failure taxonomy surfaced to callers. The HTTP layer maps these to status
// codes exactly once; raw storage or provider errors never cross that
// boundary.
var (
	ErrValidation = errors.New("chat: invalid input")
	ErrNotFound   = errors.New("chat: not found")
	ErrForbidden  = errors.New("chat: forbidden")
	ErrCompletion = errors.New("chat: completion failed")
)
