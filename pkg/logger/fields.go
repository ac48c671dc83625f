package logger

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field represents a structured log field.
type Field = zap.Field

const (
	requestIDKey = "request_id"
	sessionIDKey = "session_id"
	clientIDKey  = "client_id"
)

// String constructs a field with a string value.
func String(key string, val string) Field {
	return zap.String(key, val)
}

// Int constructs a field with an integer value.
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int64 constructs a field with a 64-bit integer value.
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Bool constructs a field with a boolean value.
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration constructs a field with a time.Duration value.
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Error constructs a field with an error value.
func Error(err error) Field {
	return zap.Error(err)
}

// Any constructs a field with any value using reflection.
func Any(key string, val interface{}) Field {
	return zap.Any(key, val)
}

// RequestID constructs a request_id field.
func RequestID(id string) Field {
	return String(requestIDKey, id)
}

// SessionID constructs a session_id field. It is indexed by the SQLite sink.
func SessionID(id uuid.UUID) Field {
	return String(sessionIDKey, id.String())
}

// ClientID constructs a client_id field. It is indexed by the SQLite sink.
func ClientID(id uuid.UUID) Field {
	return String(clientIDKey, id.String())
}

// TaxID logs a tax id. Callers pass the masked form; raw ids never reach logs.
func TaxID(masked string) Field {
	return String("tax_id", masked)
}

// Step constructs a wizard step field.
func Step(step int) Field {
	return Int("step", step)
}

// SessionStatus constructs a session status field.
func SessionStatus(status string) Field {
	return String("session_status", status)
}

// Attempt constructs a poll attempt field.
func Attempt(n int) Field {
	return Int("attempt", n)
}

// Method constructs an HTTP method field.
func Method(method string) Field {
	return String("method", method)
}

// Path constructs an HTTP path field.
func Path(path string) Field {
	return String("path", path)
}

// Status constructs an HTTP status code field.
func Status(code int) Field {
	return Int("status", code)
}

// Latency constructs a latency field from duration.
func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

// ClientIP constructs a client_ip field.
func ClientIP(ip string) Field {
	return String("client_ip", ip)
}

// UserAgent constructs a user_agent field.
func UserAgent(ua string) Field {
	return String("user_agent", ua)
}

// Component constructs a component field for identifying log source.
func Component(name string) Field {
	return String("component", name)
}

// parseLevel converts a string level to zapcore.Level.
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
