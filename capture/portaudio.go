package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/bosley/minutes/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// stream wraps one PortAudio input stream.
type stream struct {
	device string
	format audio.WAVFormat

	mu sync.Mutex
	s  *portaudio.Stream
}

func (st *stream) open(callback func(in []int16)) error {
	device, err := audio.FindInputDevice(st.device)
	if err != nil {
		return err
	}

	slog.Info("Using audio device",
		"deviceName", device.Name,
		"sampleRate", st.format.SampleRate,
		"inputChannels", st.format.Channels)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: int(st.format.Channels),
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(st.format.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	s, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
	return nil
}

func (st *stream) close() error {
	st.mu.Lock()
	s := st.s
	st.s = nil
	st.mu.Unlock()

	if s == nil {
		return nil
	}
	stopErr := s.Stop()
	closeErr := s.Close()
	if stopErr != nil {
		return fmt.Errorf("failed to stop audio stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close audio stream: %w", closeErr)
	}
	return nil
}

// MicrophoneTap records the microphone into a WAV file.
type MicrophoneTap struct {
	stream
	path string

	mu          sync.Mutex
	writer      *audio.WAVWriter
	writeErrors atomic.Int64
	level       atomic.Uint64
}

func NewMicrophoneTap(device string, format audio.WAVFormat, path string) *MicrophoneTap {
	return &MicrophoneTap{
		stream: stream{device: device, format: format},
		path:   path,
	}
}

func (t *MicrophoneTap) Name() string { return "microphone" }

func (t *MicrophoneTap) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer == nil {
		return ""
	}
	return t.path
}

// Level is the RMS amplitude of the last buffer.
func (t *MicrophoneTap) Level() float64 {
	return math.Float64frombits(t.level.Load())
}

func (t *MicrophoneTap) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	writer, err := audio.CreateWAV(t.path, t.format)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.writer = writer
	t.mu.Unlock()

	return t.open(func(in []int16) {
		t.level.Store(math.Float64bits(amplitude(in)))
		if err := writer.WriteSamples(in); err != nil {
			t.writeErrors.Add(1)
		}
	})
}

func (t *MicrophoneTap) Stop() error {
	streamErr := t.close()

	t.mu.Lock()
	writer := t.writer
	t.mu.Unlock()

	if writer != nil {
		if n := t.writeErrors.Load(); n > 0 {
			slog.Warn("Dropped microphone buffers", "count", n, "file", t.path)
		}
		if err := writer.Close(); err != nil {
			return err
		}
		slog.Debug("Microphone file closed", "file", t.path, "bytes", writer.DataSize())
	}
	return streamErr
}

// SystemTap listens to a system-audio monitor source. Its samples are
// counted and dropped; they are not mixed into the artifact. PortAudio
// cannot exclude this process's own output from the monitor.
type SystemTap struct {
	stream
	frames atomic.Int64
}

func NewSystemTap(device string, format audio.WAVFormat) *SystemTap {
	return &SystemTap{stream: stream{device: device, format: format}}
}

func (t *SystemTap) Name() string { return "system-audio" }

// Frames received since Start.
func (t *SystemTap) Frames() int64 {
	return t.frames.Load()
}

func (t *SystemTap) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.frames.Store(0)

	channels := int64(t.format.Channels)
	if channels == 0 {
		channels = 1
	}
	return t.open(func(in []int16) {
		t.frames.Add(int64(len(in)) / channels)
	})
}

func (t *SystemTap) Stop() error {
	err := t.close()
	slog.Debug("System audio tap stopped", "frames", t.frames.Load())
	return err
}

func amplitude(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range chunk {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(chunk)))
}
