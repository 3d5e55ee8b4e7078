// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, DecodedFrame, StreamDescriptor and sample conversion functions
// Package audio provides fundamental audio types and utilities for hi-res audio processing.
//
// This package defines core types used throughout the client runtime:
//   - Format: Describes audio stream format (codec, sample rate, channels, bit depth)
//   - StreamDescriptor: The active stream's format and playback state
//   - DecodedFrame: Decoded PCM tagged with its server-domain presentation timestamp
//
// It also provides utilities for converting between different sample formats:
//   - 16-bit ↔ 24-bit conversions
//   - int32 ↔ packed byte conversions
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "pcm",
//	    SampleRate: 192000,
//	    Channels:   2,
//	    BitDepth:   24,
//	}
//
//	// Convert 16-bit sample to 24-bit range
//	sample24 := audio.SampleFromInt16(sample16)
package audio
