package garmin

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrorKind is the discriminant of a vendor failure.
type ErrorKind int

const (
	// KindOther covers every failure not listed below.
	KindOther ErrorKind = iota
	// KindRateLimit means the vendor throttled the request; the identical
	// request may succeed later.
	KindRateLimit
	// KindConnection means the request never got a usable response.
	KindConnection
	// KindAuth means the session or credentials were rejected.
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	default:
		return "other"
	}
}

// APIError is a classified vendor failure.
type APIError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("garmin ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Classify returns the kind of err. Typed *APIError values carry their kind;
// transport errors are connection failures; anything else falls back to
// matching the message for rate-limit wording.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "too many request") || strings.Contains(msg, "rate limit") {
		return KindRateLimit
	}
	return KindOther
}

// IsRateLimit reports whether err is a rate-limit failure.
func IsRateLimit(err error) bool {
	return err != nil && Classify(err) == KindRateLimit
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return err != nil && Classify(err) == KindAuth
}
