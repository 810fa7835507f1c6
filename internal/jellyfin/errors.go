package jellyfin

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Kind groups request failures into the buckets callers branch on.
type Kind string

const (
	// KindAuthentication covers sign-in failures and lost sessions that
	// need the user to provide credentials again.
	KindAuthentication Kind = "authentication"
	// KindUnauthorized covers requests the server rejected for a stale or
	// missing token. The repository retries these after re-authenticating.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden covers requests the account is not allowed to make.
	KindForbidden Kind = "forbidden"
	// KindNotFound covers requests for items the server does not have.
	KindNotFound Kind = "not_found"
	// KindValidation covers requests the server rejected as malformed.
	KindValidation Kind = "validation"
	// KindNetwork covers transport failures where no response arrived.
	KindNetwork Kind = "network"
	// KindUnknown covers everything else.
	KindUnknown Kind = "unknown"
)

// Error is the canonical failure type returned by the client.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with the given kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError attaches a kind to err. An error that already carries a kind is
// returned unchanged so the first classification sticks.
func WrapError(err error, kind Kind) *Error {
	if err == nil {
		return nil
	}
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// FromStatus maps a non-2xx response to an Error. The body, if present, is
// carried in the message for logs.
func FromStatus(status int, body string) *Error {
	var kind Kind
	switch status {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusBadRequest:
		kind = KindValidation
	default:
		kind = KindUnknown
	}
	message := fmt.Sprintf("server returned status %d", status)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// Classify reports the Kind of err. A wrapped Error keeps its recorded kind,
// transport failures map to KindNetwork, anything else is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr.Kind
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

func classify(kind Kind) func(error) bool {
	return func(err error) bool {
		return Classify(err) == kind
	}
}

// Predicates for the kinds callers branch on.
var (
	IsAuthentication = classify(KindAuthentication)
	IsUnauthorized   = classify(KindUnauthorized)
	IsForbidden      = classify(KindForbidden)
	IsNotFound       = classify(KindNotFound)
	IsValidation     = classify(KindValidation)
	IsNetwork        = classify(KindNetwork)
)
