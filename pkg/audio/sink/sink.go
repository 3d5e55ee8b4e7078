// Package sink defines the audio output adapter contract: open, write,
// pause, close, and platform volume get/set, per spec §6.
package sink

// Sink is the external collaborator the playout scheduler (Component E)
// drains decoded PCM into. Write must not block the audio context for
// longer than it takes to enqueue a buffer.
type Sink interface {
	// Open configures (or reconfigures) the device for the given format.
	Open(sampleRateHz, channels, bitDepth int) error

	// Write enqueues interleaved PCM samples for playback. It returns
	// immediately; playback happens asynchronously.
	Write(samples []int32) error

	// Pause stops the device from consuming queued audio without
	// releasing it, used while the clock filter has not yet converged.
	Pause() error

	// Close releases the device.
	Close() error

	// VolumeGet/VolumeSet report and apply the platform volume, 0-100.
	VolumeGet() int
	VolumeSet(volume int)

	// MuteGet/MuteSet report and apply the platform mute flag.
	MuteGet() bool
	MuteSet(muted bool)
}
