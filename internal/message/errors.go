package message

import "errors"

var (
	// ErrEncode indicates a message could not be serialized.
	ErrEncode = errors.New("message: encode failed")

	// ErrDecode indicates wire bytes could not be parsed as a message.
	ErrDecode = errors.New("message: decode failed")
)
