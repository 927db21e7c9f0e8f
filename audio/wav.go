package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

const (
	headerSize = 44

	// maxDataSize keeps the RIFF chunk size (data + 36) within 32 bits.
	maxDataSize = math.MaxUint32 - 36
)

// ErrWAVFull is returned once a file holds as much sample data as a WAV
// header can describe.
var ErrWAVFull = errors.New("wav file size limit reached")

// WAVFormat describes linear PCM audio.
type WAVFormat struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

var (
	// MicrophoneFormat is what the microphone tap records into the artifact.
	MicrophoneFormat = WAVFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}

	// SystemFormat is the fixed rate and channel count of the system-audio tap.
	SystemFormat = WAVFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
)

func (f WAVFormat) blockAlign() uint16 {
	return f.Channels * f.BitsPerSample / 8
}

func (f WAVFormat) byteRate() uint32 {
	return f.SampleRate * uint32(f.blockAlign())
}

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteHeader writes a PCM header for dataSize bytes of sample data.
func WriteHeader(w io.Writer, format WAVFormat, dataSize uint32) error {
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   format.Channels,
		SampleRate:    format.SampleRate,
		ByteRate:      format.byteRate(),
		BlockAlign:    format.blockAlign(),
		BitsPerSample: format.BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// UpdateHeader patches the two size fields once the data length is known.
func UpdateHeader(w io.WriteSeeker, dataSize uint32) error {
	if _, err := w.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to ChunkSize: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize+36); err != nil {
		return fmt.Errorf("failed to write ChunkSize: %w", err)
	}

	if _, err := w.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to Subchunk2Size: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write Subchunk2Size: %w", err)
	}

	return nil
}

// WAVWriter appends samples to a WAV file as they arrive. The header is
// written up front with a zero length and corrected on Close.
type WAVWriter struct {
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	format   WAVFormat
	dataSize uint32
	closed   bool
}

// CreateWAV creates path exclusively and writes a placeholder header.
func CreateWAV(path string, format WAVFormat) (*WAVWriter, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	if err := WriteHeader(file, format, 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}

	return &WAVWriter{
		file:   file,
		buf:    bufio.NewWriterSize(file, 64*1024),
		format: format,
	}, nil
}

// Name returns the path of the underlying file.
func (w *WAVWriter) Name() string {
	return w.file.Name()
}

// WriteSamples appends little-endian int16 samples.
func (w *WAVWriter) WriteSamples(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if uint64(w.dataSize)+uint64(len(samples))*2 > maxDataSize {
		return ErrWAVFull
	}
	if err := binary.Write(w.buf, binary.LittleEndian, samples); err != nil {
		return err
	}
	w.dataSize += uint32(len(samples) * 2)
	return nil
}

// DataSize reports how many bytes of sample data have been written.
func (w *WAVWriter) DataSize() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataSize
}

// Close flushes pending samples, fixes the header and closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush wav data: %w", err)
	}
	if err := UpdateHeader(w.file, w.dataSize); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
