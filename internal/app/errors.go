package app

import "errors"

// Domain sentinel errors, mapped to HTTP status codes in the adapters.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidRoomID       = errors.New("invalid room id")
	ErrUnsupportedLanguage = errors.New("unsupported target language")
	ErrQuotaExhausted      = errors.New("free minutes exhausted")
	ErrSpeechNotConfigured = errors.New("speech credentials not configured")

	// ErrRoomIDSpaceExhausted means the bounded retry on id generation
	// failed, which is a capacity problem, not a transient fault.
	ErrRoomIDSpaceExhausted = errors.New("room id space exhausted")
)
