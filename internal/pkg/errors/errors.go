// Package errors is the coded error type used across scenegen. A Code
// decides whether a failed sample is retried, what reason the run report
// records and which status the API answers with.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

type Code string

const (
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeCanceled   Code = "CANCELED"
	CodeBadRequest Code = "BAD_REQUEST"

	CodeAssetUnavailable    Code = "ASSET_UNAVAILABLE"
	CodeAssetInvalid        Code = "ASSET_INVALID"
	CodeInsufficientObjects Code = "INSUFFICIENT_OBJECTS"

	CodeRenderTimeout   Code = "RENDER_TIMEOUT"
	CodeRenderCrash     Code = "RENDER_CRASH"
	CodeRenderMalformed Code = "RENDER_MALFORMED"

	// CodeAssembly covers output validation and commit after a good render.
	CodeAssembly Code = "ASSEMBLY_ERROR"
)

type codeInfo struct {
	status    int
	transient bool
}

// Codes missing here are internal: 500 and not transient.
var codes = map[Code]codeInfo{
	CodeValidation:          {status: 400},
	CodeBadRequest:          {status: 400},
	CodeInsufficientObjects: {status: 400},
	CodeNotFound:            {status: 404},
	CodeConflict:            {status: 409},
	CodeAssetInvalid:        {status: 422},
	CodeAssembly:            {status: 422},
	CodeRenderMalformed:     {status: 422, transient: true},
	CodeCanceled:            {status: 499},
	CodeAssetUnavailable:    {status: 503},
	CodeRenderTimeout:       {status: 504, transient: true},
	CodeRenderCrash:         {status: 500, transient: true},
}

// HTTPStatus is the status the API answers with for c.
func (c Code) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return 500
}

// Transient reports whether rendering the same scene again may succeed.
func (c Code) Transient() bool {
	return codes[c].transient
}

type Error struct {
	Code    Code
	Message string
	// Op names the failing stage, e.g. "resolver.fetch".
	Op     string
	Err    error
	Fields map[string]any
	Stack  []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error renders as "op: [CODE] message: cause", omitting empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		b.WriteString("[" + string(e.Code) + "] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) WithField(key string, value any) *Error {
	return e.WithFields(map[string]any{key: value})
}

func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// StackTrace is one "file:line function" line per captured frame.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack(2)}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack(2)}
}

// Wrap adds op and message to err. A coded cause keeps its code and
// fields; anything else becomes internal. Wrap(nil, ...) is nil.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	out := &Error{Code: CodeInternal, Message: message, Op: op, Err: err, Stack: captureStack(2)}
	var e *Error
	if errors.As(err, &e) {
		out.Code = e.Code
		out.Fields = e.Fields
	}
	return out
}

func Wrapf(err error, op, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	e := Wrap(err, op, fmt.Sprintf(format, args...))
	e.Stack = captureStack(2)
	return e
}

// WrapWithCode is Wrap with the code forced to code.
func WrapWithCode(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Stack: captureStack(2)}
}

func Internal(message string) *Error { return New(CodeInternal, message) }

func Internalf(format string, args ...any) *Error { return Newf(CodeInternal, format, args...) }

func NotFound(resource, id string) *Error {
	return Newf(CodeNotFound, "%s not found: %s", resource, id).
		WithFields(map[string]any{"resource": resource, "id": id})
}

func Validation(message string) *Error { return New(CodeValidation, message) }

func Validationf(format string, args ...any) *Error { return Newf(CodeValidation, format, args...) }

// ValidationField is a validation error naming the offending config field.
func ValidationField(field, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// AssetUnavailable reports an identifier whose source could not be
// fetched. cause may be nil.
func AssetUnavailable(identifier string, cause error) *Error {
	msg := "asset unavailable: " + identifier
	e := &Error{Code: CodeAssetUnavailable, Message: msg, Op: "resolver.fetch", Err: cause, Stack: captureStack(2)}
	return e.WithField("identifier", identifier)
}

// AssetInvalid reports a fetched file that failed the integrity check.
func AssetInvalid(identifier, reason string) *Error {
	return Newf(CodeAssetInvalid, "asset invalid: %s: %s", identifier, reason).
		WithField("identifier", identifier)
}

// InsufficientObjects reports a candidate pool smaller than task needs.
func InsufficientObjects(task string, need, have int) *Error {
	return Newf(CodeInsufficientObjects, "%s needs %d distinct objects, pool has %d", task, need, have).
		WithFields(map[string]any{"task": task, "need": need, "have": have})
}

func Assembly(format string, args ...any) *Error { return Newf(CodeAssembly, format, args...) }

// GetCode is the code of the outermost *Error in err's chain, or
// CodeInternal when there is none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int { return GetCode(err).HTTPStatus() }

func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool { return GetCode(err) == code }

func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

func IsValidation(err error) bool { return IsCode(err, CodeValidation) }

// IsTransient is code.Transient.
func IsTransient(code Code) bool { return code.Transient() }

func As(err error, target any) bool { return errors.As(err, target) }

func Is(err, target error) bool { return errors.Is(err, target) }

// captureStack keeps at most ten non-runtime frames above its caller.
func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]Frame, 0, 10)
	for len(out) < 10 {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}
