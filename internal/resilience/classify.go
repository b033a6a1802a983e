package resilience

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"time"
)

// Kind is a delivery failure category.
type Kind string

// Failure kinds.
const (
	KindRateLimit        Kind = "RATE_LIMIT"
	KindInvalidRecipient Kind = "INVALID_RECIPIENT"
	KindQuotaExceeded    Kind = "QUOTA_EXCEEDED"
	KindAuth             Kind = "AUTH_ERROR"
	KindNetwork          Kind = "NETWORK_ERROR"
	KindGeneric          Kind = "GENERIC"
	KindCircuitOpen      Kind = "CIRCUIT_OPEN"
	KindOptedOut         Kind = "OPTED_OUT"
	KindMissingRecipient Kind = "MISSING_RECIPIENT"
	KindRender           Kind = "RENDER_ERROR"
	KindInvalidMessage   Kind = "INVALID_MESSAGE"
	// KindAborted means the provider was never called because the run stopped.
	KindAborted Kind = "ABORTED"
)

// Failure is the classification of one failed delivery attempt.
type Failure struct {
	Kind      Kind
	Retriable bool
	// RetryAfter is the minimum wait before the next attempt.
	RetryAfter time.Duration
}

var failures = map[Kind]Failure{
	KindRateLimit:        {Kind: KindRateLimit, Retriable: true, RetryAfter: 15 * time.Minute},
	KindInvalidRecipient: {Kind: KindInvalidRecipient, Retriable: false},
	KindQuotaExceeded:    {Kind: KindQuotaExceeded, Retriable: true, RetryAfter: 24 * time.Hour},
	KindAuth:             {Kind: KindAuth, Retriable: true, RetryAfter: 5 * time.Minute},
	KindNetwork:          {Kind: KindNetwork, Retriable: true, RetryAfter: 5 * time.Minute},
	KindGeneric:          {Kind: KindGeneric, Retriable: true, RetryAfter: 5 * time.Minute},
	KindOptedOut:         {Kind: KindOptedOut, Retriable: false},
	KindMissingRecipient: {Kind: KindMissingRecipient, Retriable: false},
	KindRender:           {Kind: KindRender, Retriable: false},
	KindInvalidMessage:   {Kind: KindInvalidMessage, Retriable: false},
	KindAborted:          {Kind: KindAborted, Retriable: true},
}

// FailureOf returns the canonical failure for a kind.
func FailureOf(kind Kind) Failure {
	if f, ok := failures[kind]; ok {
		return f
	}
	return failures[KindGeneric]
}

type statusCoder interface {
	StatusCode() int
}

type providerCoder interface {
	ProviderCode() int
}

type notAttempted interface {
	NotAttempted() bool
}

type invalidMessage interface {
	InvalidMessage() bool
}

// Classify maps a transport error onto the failure taxonomy using status
// codes when the error carries them and falling back to its text.
func Classify(err error) Failure {
	if err == nil {
		return FailureOf(KindGeneric)
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Failure
	}

	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		return Failure{Kind: KindCircuitOpen, Retriable: true, RetryAfter: time.Until(coe.RetryAt)}
	}

	var na notAttempted
	if errors.Is(err, context.Canceled) || (errors.As(err, &na) && na.NotAttempted()) {
		return FailureOf(KindAborted)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureOf(KindNetwork)
	}

	var im invalidMessage
	if errors.As(err, &im) && im.InvalidMessage() {
		return FailureOf(KindInvalidMessage)
	}

	var pc providerCoder
	if errors.As(err, &pc) && pc.ProviderCode() != 0 {
		switch pc.ProviderCode() {
		// Postmark: invalid email request, inactive recipient.
		case 300, 406:
			return FailureOf(KindInvalidRecipient)
		case 10:
			return FailureOf(KindAuth)
		// Postmark: not allowed to send, out of credits.
		case 405:
			return FailureOf(KindQuotaExceeded)
		case 429:
			return FailureOf(KindRateLimit)
		}
		return FailureOf(KindGeneric)
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		if kind, ok := kindForStatus(sc.StatusCode()); ok {
			return FailureOf(kind)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureOf(KindNetwork)
	}

	return FailureOf(classifyText(strings.ToLower(err.Error())))
}

// kindForStatus maps HTTP statuses and SMTP reply codes. SMTP codes that
// collide with HTTP ranges are matched first.
func kindForStatus(status int) (Kind, bool) {
	switch status {
	case 429, 421:
		return KindRateLimit, true
	case 452:
		return KindQuotaExceeded, true
	case 401, 403, 530, 535:
		return KindAuth, true
	case 400, 404, 422, 501, 550, 551, 553:
		return KindInvalidRecipient, true
	// SMTP: mailbox busy, local error, TLS unavailable.
	case 450, 451, 454:
		return KindNetwork, true
	}

	switch {
	case status >= 500 && status < 600:
		return KindNetwork, true
	case status >= 400 && status < 500:
		return KindGeneric, true
	}
	return "", false
}

// Needles match whole words; a trailing * matches any word starting with the stem.
var textRules = []struct {
	kind    Kind
	pattern *regexp.Regexp
}{
	{KindRateLimit, wordPattern("rate limit*", "ratelimit*", "too many requests", "too many", "throttl*", "429")},
	{KindQuotaExceeded, wordPattern("quota", "daily limit", "sending limit", "limit exceeded")},
	{KindInvalidRecipient, wordPattern("invalid recipient", "invalid email", "inactive recipient", "no such user", "mailbox unavailable", "user unknown", "recipient rejected", "invalid address", "550", "553")},
	{KindAuth, wordPattern("unauthorized", "authentication", "auth", "credential*", "invalid_grant", "token", "forbidden", "535")},
	{KindNetwork, wordPattern("connection", "timeout", "timed out", "network", "eof", "dial", "no such host", "tls", "temporar*", "unavailable", "503", "502", "504")},
}

func wordPattern(needles ...string) *regexp.Regexp {
	alts := make([]string, 0, len(needles))
	for _, n := range needles {
		if stem, ok := strings.CutSuffix(n, "*"); ok {
			alts = append(alts, `\b`+regexp.QuoteMeta(stem))
			continue
		}
		alts = append(alts, `\b`+regexp.QuoteMeta(n)+`\b`)
	}
	return regexp.MustCompile(strings.Join(alts, "|"))
}

func classifyText(msg string) Kind {
	for _, rule := range textRules {
		if rule.pattern.MatchString(msg) {
			return rule.kind
		}
	}
	return KindGeneric
}
