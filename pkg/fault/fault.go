// Package fault defines the error kinds shared across relay packages.
//
// Each kind is a sentinel. Errors produced by relay wrap one of them, so
// callers classify failures with errors.Is:
//
//	if errors.Is(err, fault.ErrConnection) { ... }
//
// Recoverable kinds (connection and tool failures) are handled inside the
// engine and the agent loop; ErrConfig and ErrModelResponse reach the caller.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a malformed or missing configuration value.
	ErrConfig = errors.New("config error")

	// ErrConnection marks a transport or handshake failure.
	ErrConnection = errors.New("connection error")

	// ErrToolNotFound marks a call to a tool nobody publishes.
	ErrToolNotFound = errors.New("tool not found")

	// ErrArgumentParse marks a tool argument payload that is not a JSON object.
	ErrArgumentParse = errors.New("argument parse error")

	// ErrToolExecution marks a provider-side or transport failure during a call.
	ErrToolExecution = errors.New("tool execution error")

	// ErrModelResponse marks a reply from the model that cannot be used.
	ErrModelResponse = errors.New("model response error")
)

// Error is a classified error. It unwraps to both its Kind and its cause.
type Error struct {
	Kind error  // One of the sentinels above.
	Op   string // Operation that failed, e.g. "mcpclient: connect".
	Err  error  // Underlying cause; may be nil.
}

// New returns an *Error of the given kind.
func New(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns an *Error of the given kind whose cause is built from format.
func Newf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the first relay kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range []error{
		ErrConfig,
		ErrConnection,
		ErrToolNotFound,
		ErrArgumentParse,
		ErrToolExecution,
		ErrModelResponse,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
