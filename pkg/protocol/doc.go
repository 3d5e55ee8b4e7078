// ABOUTME: Sendspin wire protocol package
// ABOUTME: Defines protocol messages, the binary media frame codec, and codec tags
// Package protocol implements the Sendspin wire protocol: JSON control
// frame types (§6), the binary media frame header, and the codec tag
// table used to validate an inbound frame against the active stream
// descriptor.
package protocol
