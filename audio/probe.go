package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/youpy/go-wav"
)

// Info describes an existing WAV artifact.
type Info struct {
	Format   WAVFormat
	Duration time.Duration
}

// Probe reads the header of the WAV file at path. Duration comes from the
// data chunk size, so extra chunks such as LIST do not skew it.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)

	format, err := reader.Format()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read wav format: %w", err)
	}
	duration, err := reader.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read wav duration: %w", err)
	}

	return Info{
		Format: WAVFormat{
			SampleRate:    format.SampleRate,
			Channels:      format.NumChannels,
			BitsPerSample: format.BitsPerSample,
		},
		Duration: duration,
	}, nil
}
