package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr struct {
	status int
}

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e statusErr) StatusCode() int { return e.status }

type providerErr struct {
	code int
}

func (e providerErr) Error() string     { return fmt.Sprintf("provider code %d", e.code) }
func (e providerErr) ProviderCode() int { return e.code }

type codedErr struct {
	status int
	code   int
}

func (e codedErr) Error() string     { return fmt.Sprintf("status %d code %d", e.status, e.code) }
func (e codedErr) StatusCode() int   { return e.status }
func (e codedErr) ProviderCode() int { return e.code }

type markerErr struct {
	notAttempted bool
	invalid      bool
}

func (e markerErr) Error() string        { return "marker" }
func (e markerErr) NotAttempted() bool   { return e.notAttempted }
func (e markerErr) InvalidMessage() bool { return e.invalid }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retriable bool
	}{
		{"http 429", statusErr{429}, KindRateLimit, true},
		{"http 401", statusErr{401}, KindAuth, true},
		{"http 503", statusErr{503}, KindNetwork, true},
		{"http 422", statusErr{422}, KindInvalidRecipient, false},
		{"smtp 550", statusErr{550}, KindInvalidRecipient, false},
		{"smtp 452", statusErr{452}, KindQuotaExceeded, true},
		{"smtp 535", statusErr{535}, KindAuth, true},
		{"smtp 553", statusErr{553}, KindInvalidRecipient, false},
		{"smtp 530", statusErr{530}, KindAuth, true},
		{"smtp 421", statusErr{421}, KindRateLimit, true},
		{"smtp 450", statusErr{450}, KindNetwork, true},
		{"smtp 554", statusErr{554}, KindNetwork, true},
		{"http 402", statusErr{402}, KindGeneric, true},
		{"http 409", statusErr{409}, KindGeneric, true},
		{"http 413", statusErr{413}, KindGeneric, true},
		{"postmark unmapped code on 422", codedErr{status: 422, code: 401}, KindGeneric, true},
		{"postmark invalid request on 422", codedErr{status: 422, code: 300}, KindInvalidRecipient, false},
		{"postmark not allowed to send", providerErr{405}, KindQuotaExceeded, true},
		{"invalid message", markerErr{invalid: true}, KindInvalidMessage, false},
		{"not attempted", markerErr{notAttempted: true}, KindAborted, true},
		{"markers unset", markerErr{}, KindGeneric, true},
		{"canceled", context.Canceled, KindAborted, true},
		{"wrapped canceled", fmt.Errorf("wait for send slot: %w", context.Canceled), KindAborted, true},
		{"postmark inactive recipient", providerErr{406}, KindInvalidRecipient, false},
		{"wrapped status", fmt.Errorf("send: %w", statusErr{429}), KindRateLimit, true},
		{"text rate limit", errors.New("Rate limit exceeded, slow down"), KindRateLimit, true},
		{"text quota", errors.New("Daily sending quota exceeded"), KindQuotaExceeded, true},
		{"text invalid recipient", errors.New("Invalid recipient address"), KindInvalidRecipient, false},
		{"text credentials", errors.New("oauth2: invalid_grant"), KindAuth, true},
		{"text connection", errors.New("connection reset by peer"), KindNetwork, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindNetwork, true},
		{"deadline", context.DeadlineExceeded, KindNetwork, true},
		{"unknown", errors.New("something odd"), KindGeneric, true},
		{"author is not auth", errors.New("author field missing"), KindGeneric, true},
		{"tokenizer is not token", errors.New("tokenizer crashed"), KindGeneric, true},
		{"recipient token", errors.New("invalid recipient token"), KindInvalidRecipient, false},
		{"auth word", errors.New("smtp auth failed"), KindAuth, true},
		{"credential stem", errors.New("bad credentials supplied"), KindAuth, true},
		{"throttle stem", errors.New("request throttled by upstream"), KindRateLimit, true},
		{"number inside word", errors.New("id 15503 rejected"), KindGeneric, true},
		{"nil", nil, KindGeneric, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.retriable, f.Retriable)
		})
	}
}

func TestClassify_PreclassifiedTransportError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &TransportError{
		Failure: FailureOf(KindQuotaExceeded),
		Err:     errors.New("boom"),
	})

	f := Classify(err)
	assert.Equal(t, KindQuotaExceeded, f.Kind)
	assert.Equal(t, 24*time.Hour, f.RetryAfter)
}

func TestClassify_CircuitOpen(t *testing.T) {
	err := &CircuitOpenError{Failures: 5, RetryAt: time.Now().Add(time.Minute)}
	f := Classify(err)
	assert.Equal(t, KindCircuitOpen, f.Kind)
	assert.True(t, f.Retriable)
}

func TestFailureDelays(t *testing.T) {
	assert.Equal(t, 15*time.Minute, FailureOf(KindRateLimit).RetryAfter)
	assert.Equal(t, 24*time.Hour, FailureOf(KindQuotaExceeded).RetryAfter)
	assert.Equal(t, 5*time.Minute, FailureOf(KindAuth).RetryAfter)
	assert.Equal(t, 5*time.Minute, FailureOf(KindNetwork).RetryAfter)
	assert.Equal(t, 5*time.Minute, FailureOf(KindGeneric).RetryAfter)
	assert.False(t, FailureOf(KindInvalidRecipient).Retriable)
	assert.Equal(t, KindGeneric, FailureOf(Kind("nope")).Kind)
}

func TestTransportError(t *testing.T) {
	inner := errors.New("inner")
	err := &TransportError{Failure: FailureOf(KindNetwork), Err: inner}

	assert.Equal(t, "NETWORK_ERROR: inner", err.Error())
	assert.True(t, err.IsRetryable())
	assert.Equal(t, inner, errors.Unwrap(err))
}
