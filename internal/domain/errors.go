package domain

import "errors"

// ErrorKind classifies failures so the HTTP boundary can decide how to
// report them without inspecting messages.
type ErrorKind int

const (
	// KindUnknown is any error that does not carry a kind.
	KindUnknown ErrorKind = iota
	// KindNotFound: the address did not geocode, resolved to no district,
	// or a looked-up record does not exist.
	KindNotFound
	// KindUpstream: a remote collaborator was unreachable or answered badly.
	KindUpstream
	// KindDenied: the request was well formed but a validation rule rejected it.
	KindDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a KindNotFound error.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Upstream wraps err as a KindUpstream error.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Denied returns a KindDenied error.
func Denied(msg string) error {
	return &Error{Kind: KindDenied, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain. A nil error
// has kind KindUnknown as well, so callers check err != nil first.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
