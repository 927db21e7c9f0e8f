package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVWriterPatchesHeaderOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.wav")

	w, err := CreateWAV(path, MicrophoneFormat)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(make([]int16, 1000)))
	require.NoError(t, w.WriteSamples(make([]int16, 500)))
	assert.Equal(t, uint32(3000), w.DataSize())
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, headerSize+3000)

	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WAVE", string(raw[8:12]))
	assert.Equal(t, uint32(3000+36), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(3000), binary.LittleEndian.Uint32(raw[40:44]))
	assert.Equal(t, MicrophoneFormat.SampleRate, binary.LittleEndian.Uint32(raw[24:28]))
}

func TestWAVWriterCloseTwice(t *testing.T) {
	w, err := CreateWAV(filepath.Join(t.TempDir(), "a.wav"), MicrophoneFormat)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteSamples([]int16{1}), os.ErrClosed)
}

func TestWAVWriterStopsAtSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	w, err := CreateWAV(path, MicrophoneFormat)
	require.NoError(t, err)
	defer w.Close()

	w.dataSize = maxDataSize - 4
	require.NoError(t, w.WriteSamples([]int16{1, 2}))
	assert.Equal(t, uint32(maxDataSize), w.DataSize())

	assert.ErrorIs(t, w.WriteSamples([]int16{3}), ErrWAVFull)
	assert.Equal(t, uint32(maxDataSize), w.DataSize())
}

func TestCreateWAVRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taken.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := CreateWAV(path, MicrophoneFormat)
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two-seconds.wav")

	w, err := CreateWAV(path, MicrophoneFormat)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(make([]int16, 2*int(MicrophoneFormat.SampleRate))))
	require.NoError(t, w.Close())

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, MicrophoneFormat, info.Format)
	assert.Equal(t, 2*time.Second, info.Duration)
}

func TestProbeIgnoresExtraChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagged.wav")
	samples := make([]int16, int(MicrophoneFormat.SampleRate))
	dataSize := uint32(len(samples) * 2)
	info := []byte("INFOISFT\x06\x00\x00\x00minute")

	f, err := os.Create(path)
	require.NoError(t, err)
	le := binary.LittleEndian
	write := func(v any) { require.NoError(t, binary.Write(f, le, v)) }

	write([]byte("RIFF"))
	write(uint32(4 + 24 + 8 + len(info) + 8 + int(dataSize)))
	write([]byte("WAVEfmt "))
	write(uint32(16))
	write(uint16(1))
	write(MicrophoneFormat.Channels)
	write(MicrophoneFormat.SampleRate)
	write(MicrophoneFormat.byteRate())
	write(MicrophoneFormat.blockAlign())
	write(MicrophoneFormat.BitsPerSample)
	write([]byte("LIST"))
	write(uint32(len(info)))
	write(info)
	write([]byte("data"))
	write(dataSize)
	write(samples)
	require.NoError(t, f.Close())

	got, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, MicrophoneFormat, got.Format)
	assert.Equal(t, time.Second, got.Duration)
}

func TestProbeMissingFile(t *testing.T) {
	_, err := Probe(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}
