// Package protocols holds the static registry of vendor device
// protocols and their implementations: Lovense (text commands, vibrate,
// rotate on the Nora, battery), Vorze A10 Cyclone (binary rotate), and
// WeVibe (binary vibrate).
//
// Each protocol instance is created fresh for one device at match time
// and keeps that device's last-sent values so redundant writes can be
// suppressed. Instances are not shared and rely on the owning Device for
// serialization.
package protocols
