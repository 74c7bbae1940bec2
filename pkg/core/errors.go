package core

import "fmt"

// ErrorKind classifies where in the pipeline an error happened.
type ErrorKind string

// ErrorKind constants.
const (
	// KindBuild is structural misuse of the query tree, found before serialization.
	KindBuild ErrorKind = "build"
	// KindSerialization is an unresolvable field or unsupported option.
	KindSerialization ErrorKind = "serialization"
	// KindDecode is a message that did not fit the expected type.
	KindDecode ErrorKind = "decode_mismatch"
	// KindTransport is a connection-level failure; fatal to the stream.
	KindTransport ErrorKind = "transport"
)

// Error codes refine a kind.
const (
	CodeTypeError     = "type_error"
	CodeUnknownField  = "unknown_field"
	CodeUnknownOption = "unknown_option"
	CodeInvalidOption = "invalid_option"
	CodeInvalidValue  = "invalid_value"
	CodeProtocol      = "protocol"
	CodeServer        = "server"
	CodeClosed        = "closed"
)

// Error is the typed error of the changefeed pipeline.
type Error struct {
	Kind  ErrorKind
	Code  string
	Op    string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Code != "" {
		prefix += "/" + e.Code
	}
	if e.Op != "" {
		prefix += " " + e.Op
	}
	switch {
	case e.Msg != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind, and by code when the target sets one.
// This makes the package-level sentinels usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrBuild         = &Error{Kind: KindBuild}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrDecode        = &Error{Kind: KindDecode}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrServer        = &Error{Kind: KindTransport, Code: CodeServer}
)

// NewBuildError creates a build-time error.
func NewBuildError(code, op, msg string) *Error {
	return &Error{Kind: KindBuild, Code: code, Op: op, Msg: msg}
}

// NewSerializationError creates a serialization error.
func NewSerializationError(code, msg string) *Error {
	return &Error{Kind: KindSerialization, Code: code, Msg: msg}
}

// NewDecodeError creates a decode mismatch error.
func NewDecodeError(msg string, cause error) *Error {
	return &Error{Kind: KindDecode, Msg: msg, Cause: cause}
}

// NewTransportError wraps a connection-level failure.
func NewTransportError(op string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Cause: cause}
}

// NewServerError is a transport failure reported by the server itself.
func NewServerError(op, msg string) *Error {
	return &Error{Kind: KindTransport, Code: CodeServer, Op: op, Msg: msg}
}
