package conversation

import "errors"

var (
	// ErrUnknownMode is returned by ParseMode for an unrecognized name.
	ErrUnknownMode = errors.New("conversation: unknown context mode")

	// ErrMissingToken is returned when a token-mode turn completed
	// without a continuation token.
	ErrMissingToken = errors.New("conversation: generation returned no continuation token")
)
