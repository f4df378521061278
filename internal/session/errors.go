package session

import "errors"

var (
	// ErrHandshakeRequired indicates a non-handshake message arrived
	// before the handshake completed. Terminal for the session.
	ErrHandshakeRequired = errors.New("session: handshake required")

	// ErrVersionMismatch indicates the client's schema version range has
	// no overlap with the server's. Terminal for the session.
	ErrVersionMismatch = errors.New("session: no mutually supported version")

	// ErrDuplicateMessageID indicates a request reused an id that is
	// still outstanding. A protocol violation; terminal for the session.
	ErrDuplicateMessageID = errors.New("session: duplicate message id")

	// ErrUnexpectedMessage indicates a message kind that is invalid in
	// the current state. Terminal for the session.
	ErrUnexpectedMessage = errors.New("session: unexpected message")

	// ErrClosed indicates the session has already closed.
	ErrClosed = errors.New("session: closed")
)
