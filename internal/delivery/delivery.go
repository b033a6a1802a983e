// Package delivery defines the uniform outbound email client used by the
// notification pipeline and the wrappers shared by every provider.
package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
	// Tag groups messages for provider analytics.
	Tag string
}

// Result is the outcome of a send. Exactly one of ProviderID (OK) or Err is set.
type Result struct {
	OK         bool
	ProviderID string
	Err        *Error
}

// Error is a provider failure. It never carries credentials.
type Error struct {
	Provider string
	// Status is the HTTP status or SMTP reply code, 0 when unknown.
	Status int
	// Code is a provider-specific error code, 0 when unknown.
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Code != 0:
		return fmt.Sprintf("%s: status %d code %d: %s", e.Provider, e.Status, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("%s: code %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// StatusCode returns the transport status code.
func (e *Error) StatusCode() int {
	return e.Status
}

// ProviderCode returns the provider-specific error code.
func (e *Error) ProviderCode() int {
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NotAttempted reports whether the provider was never called.
func (e *Error) NotAttempted() bool {
	return errors.Is(e.cause, ErrNotAttempted)
}

// InvalidMessage reports whether the message was rejected before sending.
func (e *Error) InvalidMessage() bool {
	return errors.Is(e.cause, ErrInvalidMessage)
}

// Client sends email through one transport.
type Client interface {
	Send(ctx context.Context, msg Message) Result
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, msg Message) Result

// Send calls f.
func (f ClientFunc) Send(ctx context.Context, msg Message) Result {
	return f(ctx, msg)
}

// Success returns a successful result.
func Success(providerID string) Result {
	return Result{OK: true, ProviderID: providerID}
}

// Failure wraps err as a failed result. An *Error in err's chain is reused.
func Failure(provider string, err error) Result {
	var de *Error
	if errors.As(err, &de) {
		return Result{Err: de}
	}
	return Result{Err: &Error{Provider: provider, Message: err.Error(), cause: err}}
}

// NewError builds an *Error with codes.
func NewError(provider string, status, code int, message string, cause error) *Error {
	return &Error{Provider: provider, Status: status, Code: code, Message: message, cause: cause}
}

var (
	// ErrInvalidMessage is returned for messages that cannot be sent.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotAttempted marks failures where the provider was never called.
	ErrNotAttempted = errors.New("send not attempted")
)

// Validate checks the message is sendable and sanitizes header values in place.
func (m *Message) Validate() error {
	addr, err := ParseAddress(m.To)
	if err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidMessage, err)
	}
	m.To = addr

	m.Subject = SanitizeHeader(m.Subject)
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.HTML == "" && m.Text == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}

	for k, v := range m.Headers {
		name := SanitizeHeader(k)
		if name != k || !validHeaderName(name) {
			return fmt.Errorf("%w: header name %q", ErrInvalidMessage, k)
		}
		m.Headers[k] = SanitizeHeader(v)
	}

	return nil
}
