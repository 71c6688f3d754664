package chat

import (
	"errors"
	"strings"
)

var (
	// ErrRoomClosed is returned by Room requests after the room stopped.
	ErrRoomClosed = errors.New("chat: room closed")

	// ErrProtocolViolation marks a session closed for sending something it may not.
	ErrProtocolViolation = errors.New("chat: protocol violation")

	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("chat: server closed")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "io: read/write on closed pipe") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "EOF")
}
