package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	KindQuota       ErrorKind = "quota"
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindServer      ErrorKind = "server"
	KindInvalid     ErrorKind = "invalid"
)

// ProviderError is returned by every remote provider call in this package.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Exhausted is set once the retry budget for a transient error is spent.
	Exhausted bool
	Err       error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Exhausted {
		b.WriteString(" [retries exhausted]")
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same call may succeed.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindNetwork, KindServer:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient() && !pe.Exhausted
}

// TriggersFallback reports whether err means the provider cannot serve this
// session: quota or credential failures, or transient failures that outlived
// their retries.
func TriggersFallback(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case KindQuota, KindAuth:
		return true
	case KindInvalid:
		return false
	default:
		return pe.Exhausted
	}
}

// ClassifyStatus maps a non-2xx provider response to a ProviderError.
func ClassifyStatus(provider string, status int, body []byte) *ProviderError {
	msg := errorMessage(body)
	pe := &ProviderError{Provider: provider, StatusCode: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Kind = KindAuth
	case status == http.StatusPaymentRequired:
		pe.Kind = KindQuota
	case status == http.StatusTooManyRequests:
		if isQuotaMessage(msg) {
			pe.Kind = KindQuota
		} else {
			pe.Kind = KindRateLimited
		}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		pe.Kind = KindTimeout
	case status >= 500:
		pe.Kind = KindServer
	default:
		pe.Kind = KindInvalid
	}
	return pe
}

// ClassifyTransport maps a failed round trip to a ProviderError. Cancellation
// by the caller is returned unchanged so it never counts against a provider.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Provider: provider, Kind: KindTimeout, Message: netErr.Error(), Err: err}
	}
	return &ProviderError{Provider: provider, Kind: KindNetwork, Message: err.Error(), Err: err}
}

func isQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "billing")
}

// errorMessage pulls the message out of an OpenAI-style error body.
func errorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg := parsed.Error.Message
		if parsed.Error.Code != "" {
			msg = parsed.Error.Code + ": " + msg
		}
		return msg
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
