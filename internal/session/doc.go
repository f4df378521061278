// Package session implements the per-client protocol state machine:
// handshake and version negotiation, message correlation through the
// outstanding-request table, event forwarding, and the ping-driven
// safety monitor.
//
// One Session exists per connected client. Protocol violations
// (handshake out of order, duplicate message ids, messages invalid for
// the current state) close that session only; device-level failures are
// reported as correlated error replies and leave the session open. The
// safety stop on ping timeout runs exactly once and never depends on
// the client connection being writable.
package session
