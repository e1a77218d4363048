// Package middleware holds the gateway's HTTP chain and the JSON error
// envelope every failure is written with.
package middleware

import (
	"net/http"
	"runtime/debug"
	"unicode"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"

	"vgate/internal/httpkit"
	"vgate/internal/pkg/errors"
	"vgate/internal/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RetryAfterSeconds is advertised on 503 responses.
const RetryAfterSeconds = "5"

const maxRequestIDLen = 128

// RequestID keeps a caller's X-Request-ID when it is short printable ASCII
// and otherwise assigns a UUID. The id is echoed and stored in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) {
			return false
		}
	}
	return true
}

// Logging writes one record per request once the response is done: info for
// 2xx/3xx, warn for 4xx and error for 5xx.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			reqLog := log.FromContext(r.Context())
			logFn := reqLog.Info
			switch {
			case m.Code >= 500:
				logFn = reqLog.Error
			case m.Code >= 400:
				logFn = reqLog.Warn
			}
			logFn("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"size", m.Written,
				"duration_ms", m.Duration.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Recovery turns a handler panic into a 500 envelope.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.FromContext(r.Context()).Error("panic recovered",
					"panic", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				WriteErrorResponse(w, errors.CodeInternal, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ErrorHandlerFunc reports failures by returning them.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err with its code and details, then writes the envelope.
// 5xx records are errors and carry the stack; 4xx are warnings.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.GetHTTPStatus(err)
	fields := errors.GetFields(err)

	args := make([]any, 0, 10+2*len(fields))
	args = append(args,
		"error", err.Error(),
		"code", string(code),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	)
	for k, v := range fields {
		args = append(args, k, v)
	}

	reqLog := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		var e *errors.Error
		if errors.As(err, &e) && len(e.Stack) > 0 {
			args = append(args, "stack", e.StackTrace())
		}
		reqLog.Error("request failed", args...)
	} else {
		reqLog.Warn("request error", args...)
	}

	WriteErrorResponse(w, code, errors.GetMessage(err), fields)
}

// WriteErrorResponse writes {"error":{"code","message","details"}} with the
// status code maps to.
func WriteErrorResponse(w http.ResponseWriter, code errors.Code, message string, details map[string]any) {
	status := code.Status()
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	httpkit.WriteErr(w, status, string(code), message, details)
}

// NotFound answers unmatched routes with the error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, errors.CodeNotFound, "route not found", map[string]any{"path": r.URL.Path})
}

// MethodNotAllowed answers a known route called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, errors.CodeMethod, "method not allowed", map[string]any{"method": r.Method, "path": r.URL.Path})
}
