package analytics

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analytics failures so the conversation engine can
// branch without knowing transport details.
type ErrorKind string

const (
	// KindMissingLocations means no valid location identifiers could be
	// resolved; raised before any network call.
	KindMissingLocations ErrorKind = "missing_locations"
	// KindMissingSources means no valid source identifiers could be
	// resolved; raised before any network call.
	KindMissingSources ErrorKind = "missing_sources"
	// KindServiceUnreachable covers connection refused and DNS failures.
	KindServiceUnreachable ErrorKind = "service_unreachable"
	// KindServiceTimeout covers deadline and socket timeouts.
	KindServiceTimeout ErrorKind = "service_timeout"
	// KindServiceNotFound covers routing failures (HTTP 404).
	KindServiceNotFound ErrorKind = "service_not_found"
	// KindServiceDenied covers access denials (HTTP 403).
	KindServiceDenied ErrorKind = "service_denied"
	// KindMalformedResponse means the body was missing the answer field.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindUnknown covers everything else, including unexpected status codes.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified analytics failure. The client never lets transport
// errors escape untagged.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the ErrorKind from an error chain, defaulting to
// KindUnknown.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
