package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindRateLimited
	KindUnavailable
	KindNetwork
	KindNotFound
	KindMalformed
)

var kindNames = map[ErrorKind]string{
	KindUnknown:     "unknown",
	KindTimeout:     "timeout",
	KindRateLimited: "rate_limited",
	KindUnavailable: "unavailable",
	KindNetwork:     "network",
	KindNotFound:    "not_found",
	KindMalformed:   "malformed",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	*k = KindUnknown
	return nil
}

// Transient reports whether a retry may succeed.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindUnavailable, KindNetwork:
		return true
	}
	return false
}

// FetchError is the typed failure returned by a Source.
type FetchError struct {
	Kind       ErrorKind
	Status     int           // upstream HTTP status, 0 if none
	RetryAfter time.Duration // server hint for rate-limited responses
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a FetchError of the given kind.
func NewFetchError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// Classify maps any error to a FetchError. Context deadlines and net timeouts
// are timeouts, connection resets are network errors, decode errors are malformed.
func Classify(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFetchError(KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewFetchError(KindTimeout, err)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return NewFetchError(KindNetwork, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewFetchError(KindNetwork, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewFetchError(KindMalformed, err)
	}
	return NewFetchError(KindUnknown, err)
}
