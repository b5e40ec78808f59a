package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies a failed call to an external source.
type Kind int

const (
	// KindPermanent covers malformed responses and 4xx other than throttling.
	// Never retried.
	KindPermanent Kind = iota
	// KindTransient covers network failures, timeouts and 5xx responses.
	KindTransient
	// KindThrottled is a 429 (or provider-specific quota) response.
	KindThrottled
	// KindNotFound means the provider reported the entity does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindTransient:
		return "transient"
	case KindThrottled:
		return "throttled"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// FetchError is the error type returned by source clients. It carries the
// classification the retry policy decides on.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err with an explicit classification.
func NewFetchError(kind Kind, statusCode int, err error) *FetchError {
	return &FetchError{Kind: kind, StatusCode: statusCode, Err: err}
}

// Throttled wraps err as a throttling failure.
func Throttled(err error, statusCode int) *FetchError {
	return NewFetchError(KindThrottled, statusCode, err)
}

// Transient wraps err as a retryable failure.
func Transient(err error, statusCode int) *FetchError {
	return NewFetchError(KindTransient, statusCode, err)
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error, statusCode int) *FetchError {
	return NewFetchError(KindPermanent, statusCode, err)
}

// NotFound wraps err as a provider "no such entity" answer.
func NotFound(err error) *FetchError {
	return NewFetchError(KindNotFound, http.StatusNotFound, err)
}

// KindForStatus maps an HTTP status code to a classification. Callers only
// use it for non-2xx responses.
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindThrottled
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusRequestTimeout, statusCode >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// Classify returns the classification of err. Explicit FetchErrors win;
// otherwise timeouts and network-level failures count as transient and
// everything else, including cancellation, is permanent. The retry loop stops
// on its own context, so a caller deadline is never retried.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return KindTransient
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindTransient
		}
	}

	return KindPermanent
}

// Retryable reports whether the retry policy may try err again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case KindTransient, KindThrottled:
		return true
	default:
		return false
	}
}
