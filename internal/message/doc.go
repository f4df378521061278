// Package message defines the session protocol catalogue: the Message
// envelope (id, kind, payload), the typed payload structs, and the Codec
// interface with its JSON implementation.
//
// Message id 0 is reserved for unsolicited events; ids above 0 correlate
// replies to requests. Unknown kinds decode to KindUnrecognized with the
// raw bytes preserved, so a session can reject a single bad message
// instead of tearing down on decode.
package message
