package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Relay taxonomy
	ErrTransport           = errors.New("stream transport failure")
	ErrParse               = errors.New("malformed stream frame")
	ErrConfiguration       = errors.New("invalid or missing configuration")
	ErrUpstreamUnavailable = errors.New("upstream market data unavailable")
	ErrHubStopped          = errors.New("relay hub is stopped")

	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Exchange Specific Errors
	ErrConnectionFailed = errors.New("failed to connect to the exchange")
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrRegionBlocked    = errors.New("exchange access restricted from this location")
)
