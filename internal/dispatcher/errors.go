package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"tutord/internal/protocol"
)

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("dispatcher closed")

// timeoutError signals that no liveness signal arrived within the window.
type timeoutError struct {
	reqID int64
	kind  protocol.CommandType
	after time.Duration
}

func (e timeoutError) Error() string {
	return fmt.Sprintf("%s request %d timed out after %s without progress", e.kind, e.reqID, e.after)
}

// IsTimeout reports whether err is a watchdog timeout.
func IsTimeout(err error) bool {
	var t timeoutError
	return errors.As(err, &t)
}

// RequestError is the engine's per-request failure. Error returns exactly the
// engine-supplied message.
type RequestError struct {
	ReqID   int64
	Message string
	Code    string
}

func (e *RequestError) Error() string { return e.Message }

// IsEngineError reports whether err is a per-request engine failure.
func IsEngineError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// IsBusy reports whether the engine rejected the request for lack of capacity.
func IsBusy(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Code == protocol.CodeBusy
}

// startupError signals that warmup did not complete.
type startupError struct{ msg string }

func (e startupError) Error() string { return "engine startup failed: " + e.msg }

// IsStartupFailure reports whether err is an engine startup failure.
func IsStartupFailure(err error) bool {
	var s startupError
	return errors.As(err, &s)
}

// closedError signals that the event channel closed under a pending request.
type closedError struct{ cause error }

func (e closedError) Error() string {
	if e.cause != nil {
		return "engine channel closed: " + e.cause.Error()
	}
	return "engine channel closed"
}

func (e closedError) Unwrap() error { return e.cause }

// IsEngineClosed reports whether err was caused by losing the engine.
func IsEngineClosed(err error) bool {
	var c closedError
	return errors.As(err, &c) || errors.Is(err, ErrClosed)
}
