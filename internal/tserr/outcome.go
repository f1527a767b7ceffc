// Package tserr defines the closed error taxonomy and the ResponseOutcome
// variant every public API in this module returns.
package tserr

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed set of error categories this package recognizes. It is
// a classification, not a concrete error type: callers switch on Kind, not
// on Go type assertions, so new wire-level causes can be added without
// breaking callers that only care about the kind.
type Kind int

const (
	// KindNone indicates a successful, non-empty response.
	KindNone Kind = iota
	KindProtocolError
	KindServerError
	KindCancelled
	KindNoServer
	KindNoContent
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindProtocolError:
		return "ProtocolError"
	case KindServerError:
		return "ServerError"
	case KindCancelled:
		return "Cancelled"
	case KindNoServer:
		return "NoServer"
	case KindNoContent:
		return "NoContent"
	case KindConfigError:
		return "ConfigError"
	default:
		return "None"
	}
}

// Error wraps a Kind with a human-readable message and, for ServerError, the
// tsserver-assigned code if any.
type Error struct {
	Kind Kind
	Message string
	Code int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func Protocol(format string, args ...any) *Error {
	return &Error{Kind: KindProtocolError, Message: fmt.Sprintf(format, args...)}
}

func Server(message string, code int) *Error {
	return &Error{Kind: KindServerError, Message: message, Code: code}
}

func Cancelled(reason string) *Error {
	return &Error{Kind: KindCancelled, Message: reason}
}

func NoServer() *Error {
	return &Error{Kind: KindNoServer, Message: "no tsserver process is running"}
}

func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfigError, Message: fmt.Sprintf(format, args...)}
}

// Outcome is the result of one tsserver request: exactly one of Body/Err is
// meaningful depending on whether Err == nil.
type Outcome struct {
	Body json.RawMessage // set only when Err == nil and the body is non-empty
	Err *Error // nil means Response(Body) or NoContent (Body == nil)
}

// OK builds a successful outcome, collapsing an empty body to NoContent.
func OK(body json.RawMessage) Outcome {
	if len(body) == 0 {
		return Outcome{}
	}
	return Outcome{Body: body}
}

// Fail wraps an *Error into an Outcome.
func Fail(err *Error) Outcome {
	return Outcome{Err: err}
}

// IsNoContent reports whether this is a successful-but-empty outcome.
func (o Outcome) IsNoContent() bool {
	return o.Err == nil && len(o.Body) == 0
}

// Unmarshal decodes a successful Outcome's body into v. It is an error to
// call this on a failed or empty outcome.
func (o Outcome) Unmarshal(v any) error {
	if o.Err != nil {
		return o.Err
	}
	if len(o.Body) == 0 {
		return fmt.Errorf("tserr: cannot unmarshal an empty (NoContent) outcome")
	}
	return json.Unmarshal(o.Body, v)
}
