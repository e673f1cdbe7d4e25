package errcode

import "errors"

// Code is a stable, machine-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK          Code = "ok"
	Unsupported Code = "unsupported"

	// Device session.
	Transport     Code = "transport"      // bus or ready-line I/O failed
	ReadyTimeout  Code = "ready_timeout"  // configured wait elapsed
	NotReady      Code = "not_ready"      // ready line deasserted when a command needed it
	StatusMissing Code = "status_missing" // no device status fetched yet
	InvalidMode   Code = "invalid_mode"   // wrong operational mode for the command
	Closed        Code = "session_closed"
	Moved         Code = "session_moved" // session handed to a background reader

	// Payload decoding.
	InvalidValue  Code = "invalid_value"  // enumerant byte outside its known set
	InvalidLength Code = "invalid_length" // block shorter or longer than the codec declares

	Error Code = "error" // generic fallback
)

// E wraps a Code with the failing operation and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is matches a bare Code target, so errors.Is(err, errcode.NotReady) works
// through any amount of wrapping.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap returns nil for a nil cause, otherwise an *E carrying c and op.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
