package realtime

import "errors"

var (
	// ErrNoUser is returned when a connection is required but no
	// authenticated user is bound to the socket.
	ErrNoUser = errors.New("realtime: no authenticated user")

	// ErrNotConnected is returned when an emit or request is attempted
	// without a live connection.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrConnectTimeout is returned when the server does not acknowledge a
	// new connection within the connect window.
	ErrConnectTimeout = errors.New("realtime: connect timed out")

	// ErrConnectFailed is returned when the connection closes before the
	// server acknowledges it.
	ErrConnectFailed = errors.New("realtime: connection closed during connect")

	// ErrAckTimeout is returned when a request's acknowledgment does not
	// arrive within its window. A late ack is dropped, not delivered.
	ErrAckTimeout = errors.New("realtime: acknowledgment timed out")

	// ErrSocketClosed is returned to in-flight requests when the underlying
	// connection is torn down.
	ErrSocketClosed = errors.New("realtime: socket closed")

	// ErrSendBufferFull is returned when the outbound queue is saturated.
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// ServerError carries an explicit error payload from an acknowledgment.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "realtime: server reported an error"
	}
	return "realtime: " + e.Message
}
