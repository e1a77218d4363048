// Package errors is the gateway's coded error. The Code picks the HTTP
// status and Fields become the "details" object of the JSON error envelope.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeBadRequest  Code = "BAD_REQUEST"
	CodeNotFound    Code = "NOT_FOUND"
	CodeMethod      Code = "METHOD_NOT_ALLOWED"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeQueue       Code = "QUEUE_ERROR"
	CodeConfig      Code = "CONFIG_ERROR"
)

var statusByCode = map[Code]int{
	CodeValidation:  http.StatusBadRequest,
	CodeBadRequest:  http.StatusBadRequest,
	CodeNotFound:    http.StatusNotFound,
	CodeMethod:      http.StatusMethodNotAllowed,
	CodeQueue:       http.StatusBadGateway,
	CodeUnavailable: http.StatusServiceUnavailable,
}

// Status is the HTTP status for c. Unknown codes and CodeConfig are 500.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

const maxFrames = 10

type Frame struct {
	File     string
	Line     int
	Function string
}

type Error struct {
	Code    Code
	Message string
	// Op names the failing operation, e.g. "jobs.submit".
	Op     string
	Err    error
	Fields map[string]any
	Stack  []Frame
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", msg, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) WithField(key string, value any) *Error {
	return e.WithFields(map[string]any{key: value})
}

// WithFields merges fields into e and returns e.
func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// StackTrace renders Stack one frame per line.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return build(code, "", message, nil)
}

func Newf(code Code, format string, args ...any) *Error {
	return build(code, "", fmt.Sprintf(format, args...), nil)
}

// ValidationField is a CodeValidation error naming the offending input field.
func ValidationField(field, message string) *Error {
	return build(CodeValidation, "", message, nil).WithField("field", field)
}

// Wrap adds op and message to err. A coded err keeps its code and a copy of
// its fields; anything else becomes CodeInternal.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	var inner *Error
	if !stderrors.As(err, &inner) {
		return build(CodeInternal, op, message, err)
	}
	out := build(inner.Code, op, message, err)
	if len(inner.Fields) > 0 {
		out.WithFields(inner.Fields)
	}
	return out
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	return build(code, op, message, err)
}

func build(code Code, op, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   callers(),
	}
}

// callers records the stack starting at the caller of the exported constructor.
func callers() []Frame {
	var pcs [2 * maxFrames]uintptr
	// Skip runtime.Callers, callers, build and the constructor.
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]Frame, 0, maxFrames)
	for len(out) < maxFrames {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}

// outermost returns the first *Error in err's chain.
func outermost(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

// GetCode returns err's code; uncoded errors are CodeInternal.
func GetCode(err error) Code {
	if e, ok := outermost(err); ok {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	return GetCode(err).Status()
}

func GetFields(err error) map[string]any {
	if e, ok := outermost(err); ok {
		return e.Fields
	}
	return nil
}

// GetMessage is the client-facing message: the outermost *Error's Message,
// never the wrapped cause.
func GetMessage(err error) string {
	if e, ok := outermost(err); ok {
		return e.Message
	}
	return err.Error()
}

func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
