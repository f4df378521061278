// Package device implements the device abstraction layer: identities,
// capability sets, generic commands, and the Manager that owns the
// registry of connected hardware.
//
// The Manager allocates monotonic device indices, matches discovered
// devices against the vendor protocol registry, serializes per-device
// command dispatch, and fans lifecycle events out to subscribers. The
// Scanner, Writer, Protocol, and ProtocolRegistry interfaces defined
// here are the contracts the transport and protocol packages implement.
//
// Locking rules: the registry lock covers index lookup and mutation
// only; each Device carries its own mutex held for the full
// translate+write span. No lock is ever held across devices during a
// transport write.
package device
