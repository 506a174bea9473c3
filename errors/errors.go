package errors

import "fmt"

var (
	// Wire codec failures. Incomplete is recoverable (wait for more
	// bytes); malformed and oversized terminate the offending session.
	ErrMalformedFrame  = fmt.Errorf("malformed frame")
	ErrIncompleteFrame = fmt.Errorf("incomplete frame")
	ErrFrameTooLarge   = fmt.Errorf("frame payload exceeds limit")

	// Session lifecycle.
	ErrHandshakeFailed = fmt.Errorf("handshake failed")
	ErrNicknameInvalid = fmt.Errorf("invalid nickname")
	ErrQueueOverflow   = fmt.Errorf("outbound queue overflow")

	// Supervision.
	ErrWorkerPanic = fmt.Errorf("worker panic")
)
