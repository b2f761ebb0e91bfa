package main

import "errors"

// Kind classifies a failure so callers can decide whether to report it,
// ignore it or restart.  Kinds compare with == and satisfy error on their own,
// so errors.Is(err, KindParse) works on any wrapped *Error.
type Kind string

func (k Kind) Error() string  { return string(k) }
func (k Kind) String() string { return string(k) }

const (
	KindParse       Kind = "parse_error"
	KindActuator    Kind = "actuator_error"
	KindStorage     Kind = "storage_error"
	KindAcquisition Kind = "acquisition_error"
	KindTransport   Kind = "transport_error"
	KindUnknown     Kind = "error"
)

// Error carries a Kind together with the failing operation and its cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against its Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// kindOf extracts the Kind of err, defaulting to KindUnknown.
func kindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindUnknown
}
