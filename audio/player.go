package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const framesPerBuffer = 1024

// Play renders a WAV artifact on the default output device until it ends
// or ctx is cancelled.
func Play(ctx context.Context, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)

	format, err := reader.Format()
	if err != nil {
		return err
	}
	channels := int(format.NumChannels)
	finished := make(chan struct{})
	var once bool

	stream, err := portaudio.OpenDefaultStream(
		0,
		channels,
		float64(format.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			for i := range out {
				out[i] = 0
			}
			if once {
				return
			}

			samples, err := reader.ReadSamples(uint32(len(out) / channels))
			if err == io.EOF {
				once = true
				close(finished)
				return
			}
			if err != nil {
				slog.Error("Error reading from WAV file", "error", err)
				return
			}

			for i, sample := range samples {
				for ch := 0; ch < channels && ch < len(sample.Values); ch++ {
					out[i*channels+ch] = int16(sample.Values[ch])
				}
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-finished:
	case <-ctx.Done():
	}

	return stream.Stop()
}
