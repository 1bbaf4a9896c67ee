package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned when a session is started while another one is still open.
	ErrSessionActive = errors.New("a recording session is already running")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("recording session is closed")
	// ErrDuplicateChannel is returned when an auxiliary channel id is requested twice.
	ErrDuplicateChannel = errors.New("auxiliary channel already opened")
	// ErrNotRunning is returned when events are recorded outside of Start/Stop.
	ErrNotRunning = errors.New("logger is not running")
	// ErrLoggerState is returned when Start or Stop is called in the wrong state.
	ErrLoggerState = errors.New("invalid logger state transition")
	// ErrInvalidPayload is returned for payloads that would break the line format.
	ErrInvalidPayload = errors.New("payload contains a line break")
	// ErrBufferFull is returned when a bounded buffer cannot accept more events.
	ErrBufferFull = errors.New("event buffer is full")
)

// CapacityError reports a rejected insert into a bounded buffer. The caller
// decides whether to retry, drop or block.
type CapacityError struct {
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("event buffer is full (capacity %d)", e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrBufferFull }
