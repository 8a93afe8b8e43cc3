// Package httpx holds the JSON envelope shared by every API route and the client
// code that consumes it.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
)

// Envelope is the wire shape of every response: {success, data} on success and
// {success:false, message} on failure.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error is an outcome with an HTTP status hint. Handlers return it (or wrap it) and
// the route boundary turns it into a failure envelope.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func BadRequest(msg string) *Error   { return &Error{Status: http.StatusBadRequest, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Status: http.StatusUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Status: http.StatusForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Status: http.StatusNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Status: http.StatusConflict, Message: msg} }

// Upstream reports a failed call to an external dependency. A status outside the
// 4xx/5xx range is reported as 502.
func Upstream(status int, msg string, err error) *Error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return &Error{Status: status, Message: msg, Err: err}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// AsError resolves any error to an *Error; unknown errors become 500.
func AsError(err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return Internal(err)
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func WithServerDefaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return BadRequest("unreadable request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return BadRequest("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return BadRequest("invalid JSON payload")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteOK(w http.ResponseWriter, code int, data any) {
	WriteJSON(w, code, Envelope{Success: true, Data: data})
}

// WriteError writes the failure envelope for err. When redact is set, 5xx messages
// are replaced with a generic one.
func WriteError(w http.ResponseWriter, err error, redact bool) *Error {
	he := AsError(err)
	msg := he.Message
	if he.Status >= 500 && redact {
		msg = "internal server error"
	}
	WriteJSON(w, he.Status, Envelope{Success: false, Message: msg})
	return he
}

func IntParam(r *http.Request, key string, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// ---------------------------------------------------------------------------
// Client side
// ---------------------------------------------------------------------------

// DecodeEnvelope reads an envelope from resp into a T. A failure envelope, or a
// non-2xx status, is returned as *Error carrying the response status.
func DecodeEnvelope[T any](resp *http.Response) (T, error) {
	var zero T
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return zero, Upstream(resp.StatusCode, "read response", err)
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, Upstream(resp.StatusCode, "malformed response envelope", err)
	}
	if !env.Success || resp.StatusCode >= 300 {
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return zero, &Error{Status: status, Message: msg}
	}
	var out T
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return zero, Upstream(resp.StatusCode, "malformed response data", err)
		}
	}
	return out, nil
}

// ValidEmail reports whether s is a bare address with a dotted domain.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}
