package kobo

import "fmt"

// NotAuthenticatedError reports an operation that requires a complete token
// pair running before one exists. No network call was attempted.
type NotAuthenticatedError struct {
	Email string
}

func (e *NotAuthenticatedError) Error() string {
	return fmt.Sprintf("user %s is not authenticated", e.Email)
}

// ProtocolError reports a store response that violates the assumed API
// contract: an unsupported token type, a login page whose format changed, or
// a content URL list with no usable entry. The message carries enough context
// to diagnose an upstream API change.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}

// StatusError reports a non-2xx HTTP response that the one-shot token repair
// did not resolve.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", e.URL, e.Status)
}
