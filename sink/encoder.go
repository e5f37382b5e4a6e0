package sink

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gogpu/opchain"
)

// Encoder errors.
var (
	// ErrEncoderClosed is returned when writing to a closed encoder.
	ErrEncoderClosed = errors.New("sink: encoder closed")

	// ErrAudioFormat is returned for audio without a sample rate or channel
	// count, or whose format differs from the first buffer written.
	ErrAudioFormat = errors.New("sink: unsupported audio format")
)

// wavPCM is the WAV audio format code of integer PCM.
const wavPCM = 1

// Encoder receives the video frames and audio of one recording.
// Calls are serialized by the recorder.
type Encoder interface {
	// WriteVideo writes one frame; ts is relative to the first frame.
	WriteVideo(img *image.NRGBA, ts time.Duration) error

	// WriteAudio writes one buffer of interleaved PCM.
	WriteAudio(b opchain.AudioBuffer) error

	// Close flushes and finalizes the output.
	Close() error
}

// File names written by ImageSequence.
const (
	FramePattern  = "frame_%06d.png"
	AudioFile     = "audio.wav"
	TimestampFile = "timestamps.txt"
)

// ImageSequence is an Encoder that writes numbered PNG files, a timestamp
// list and a 16-bit PCM WAV track into a directory. It stands in for a video
// muxer; the output can be assembled with external tools.
type ImageSequence struct {
	dir string
	enc png.Encoder

	mu     sync.Mutex
	frames int
	stamps *os.File
	audio  *os.File
	wav    *wav.Encoder
	format audio.Format
	closed bool
}

// NewImageSequence creates dir if needed and returns an encoder writing
// into it.
func NewImageSequence(dir string) (*ImageSequence, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("sink: create output dir: %w", err)
	}
	stamps, err := os.Create(filepath.Join(dir, TimestampFile))
	if err != nil {
		return nil, fmt.Errorf("sink: create timestamps: %w", err)
	}
	return &ImageSequence{
		dir:    dir,
		enc:    png.Encoder{CompressionLevel: png.BestSpeed},
		stamps: stamps,
	}, nil
}

// Dir returns the output directory.
func (s *ImageSequence) Dir() string {
	return s.dir
}

// Frames returns the number of frames written.
func (s *ImageSequence) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// WriteVideo writes img as the next numbered PNG.
func (s *ImageSequence) WriteVideo(img *image.NRGBA, ts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEncoderClosed
	}

	name := fmt.Sprintf(FramePattern, s.frames)
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("sink: create frame: %w", err)
	}
	if err := s.enc.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("sink: encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sink: close frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.stamps, "%s %d\n", name, ts.Microseconds()); err != nil {
		return fmt.Errorf("sink: write timestamp: %w", err)
	}
	s.frames++
	return nil
}

// WriteAudio appends b to the WAV file. The file is created on first use
// with the format of b; later buffers must match it.
func (s *ImageSequence) WriteAudio(b opchain.AudioBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEncoderClosed
	}
	format := audio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate}
	if format.NumChannels <= 0 || format.SampleRate <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrAudioFormat, b.SampleRate, b.Channels)
	}
	if s.wav == nil {
		f, err := os.Create(filepath.Join(s.dir, AudioFile))
		if err != nil {
			return fmt.Errorf("sink: create audio: %w", err)
		}
		s.audio = f
		s.format = format
		s.wav = wav.NewEncoder(f, format.SampleRate, 16, format.NumChannels, wavPCM)
	} else if format != s.format {
		return fmt.Errorf("%w: got %d Hz x%d, recording %d Hz x%d", ErrAudioFormat,
			format.SampleRate, format.NumChannels, s.format.SampleRate, s.format.NumChannels)
	}

	data := make([]int, len(b.Samples))
	for i, v := range b.Samples {
		data[i] = int(v)
	}
	buf := &audio.IntBuffer{Format: &s.format, Data: data, SourceBitDepth: 16}
	if err := s.wav.Write(buf); err != nil {
		return fmt.Errorf("sink: write audio: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes every file. Close is idempotent.
func (s *ImageSequence) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.audio != nil {
		errs = append(errs, s.wav.Close(), s.audio.Close())
	}
	errs = append(errs, s.stamps.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sink: close image sequence: %w", err)
	}
	return nil
}

var _ Encoder = (*ImageSequence)(nil)
