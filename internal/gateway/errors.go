package gateway

import (
	"errors"
	"fmt"
)

// ErrOfflineQueued is the distinguished signal returned when a call failed at
// the transport level while offline and was converted into a durable queue
// entry. Callers should short-circuit optimistic UI on it rather than treat
// it as a hard failure.
var ErrOfflineQueued = errors.New("request queued for offline sync")

// APIError is an application-level failure: either a non-2xx HTTP status or
// a response envelope whose code is not 200. Message is the user-facing text
// (server-provided when present).
type APIError struct {
	// StatusCode is the HTTP status, 200 for envelope-level failures.
	StatusCode int
	// Code is the envelope business code, zero when the body carried none.
	Code int
	// Message is the human-readable failure text.
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 && e.Code != e.StatusCode {
		return fmt.Sprintf("api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Default user-facing messages per HTTP status, used when the server response
// carries no message of its own.
const (
	msgLoginExpired  = "login expired, please sign in again"
	msgForbidden     = "permission denied"
	msgNotFound      = "requested resource not found"
	msgServerError   = "server error"
	msgRequestFailed = "request failed"
	msgOfflineQueued = "network unavailable, request saved for offline sync"
	msgStorageFailed = "offline storage failed, check local settings"
)

// statusMessage maps an HTTP status code to the default user-facing message.
func statusMessage(status int) string {
	switch status {
	case 401:
		return msgLoginExpired
	case 403:
		return msgForbidden
	case 404:
		return msgNotFound
	case 500:
		return msgServerError
	default:
		return msgRequestFailed
	}
}
