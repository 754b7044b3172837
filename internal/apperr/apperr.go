// Package apperr classifies gateway failures so that every HTTP handler maps
// them to the same response status.
package apperr

import (
	"context"
	"errors"
	"net"
	"net/http"
)

type Kind int

const (
	// KindCaller is bad or missing input from the portal.
	KindCaller Kind = iota + 1
	// KindNotFound is a confirmed absence of the requested resource.
	KindNotFound
	// KindConfig is a gateway misconfiguration such as an unknown entity key.
	KindConfig
	// KindBackend is a non-2xx or malformed response from the ERP.
	KindBackend
	// KindUnavailable is a timeout or connection failure towards the ERP.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindCaller:
		return "caller"
	case KindNotFound:
		return "not_found"
	case KindConfig:
		return "config"
	case KindBackend:
		return "backend"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Details string
	// Fields lists offending input fields for caller errors.
	Fields []string
	// UpstreamStatus is the ERP status code when the failure came from a response.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Caller(message string, fields ...string) *Error {
	return &Error{Kind: KindCaller, Message: message, Fields: fields}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Config(message string, err error) *Error {
	return &Error{Kind: KindConfig, Message: message, Err: err}
}

func Backend(message, details string, upstreamStatus int) *Error {
	return &Error{Kind: KindBackend, Message: message, Details: details, UpstreamStatus: upstreamStatus}
}

func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// Transport classifies an outbound client failure as Backend-Unavailable,
// keeping timeouts and cancellations apart in the message.
func Transport(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return Unavailable("ERP request timed out", err)
	case errors.Is(err, context.Canceled):
		return Unavailable("request cancelled", err)
	default:
		return Unavailable("ERP backend unavailable", err)
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindBackend
// for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps err to a response status. Backend errors report 500 unless
// propagateUpstream is set and the ERP answered with a 4xx/5xx status.
func HTTPStatus(err error, propagateUpstream bool) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindCaller:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBackend:
		if propagateUpstream && e.UpstreamStatus >= 400 && e.UpstreamStatus <= 599 {
			return e.UpstreamStatus
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
