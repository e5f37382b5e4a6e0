package opchain

import "time"

// AudioBuffer is a block of interleaved signed 16-bit PCM samples.
//
// Audio buffers travel alongside video on audio edges (ConnectAudio). The
// sample slice is shared between all targets and must not be modified.
type AudioBuffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Timestamp  time.Duration
}

// Frames returns the number of sample frames (samples per channel).
func (b AudioBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the buffer.
func (b AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// AudioNode consumes audio buffers.
type AudioNode interface {
	ReceiveAudio(b AudioBuffer)
}

// AudioSource is implemented by nodes that emit audio.
type AudioSource interface {
	AudioTargets() *AudioTargets
}

// AudioTargets holds the audio targets of an AudioSource.
type AudioTargets = TargetContainer[AudioNode]

// EmitAudio delivers b to every audio target in registration order.
func EmitAudio(targets *AudioTargets, b AudioBuffer) {
	for _, n := range targets.Snapshot() {
		n.ReceiveAudio(b)
	}
}
