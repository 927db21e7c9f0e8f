package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bosley/minutes/audio"
	"github.com/bosley/minutes/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type imported struct {
	path     string
	duration time.Duration
}

type fakeImporter struct {
	mu    sync.Mutex
	calls []imported
}

func (f *fakeImporter) Import(ctx context.Context, path string, duration time.Duration) (*pipeline.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, imported{path, duration})
	return &pipeline.Run{}, nil
}

func (f *fakeImporter) all() []imported {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]imported(nil), f.calls...)
}

func writeWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	w, err := audio.CreateWAV(path, audio.MicrophoneFormat)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(make([]int16, int(audio.MicrophoneFormat.SampleRate)*seconds)))
	require.NoError(t, w.Close())
}

func TestImportsNewWAVFiles(t *testing.T) {
	dir := t.TempDir()
	importer := &fakeImporter{}

	w, err := New(Config{Dir: dir, Settle: 20 * time.Millisecond}, importer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	staged := filepath.Join(t.TempDir(), "call.wav")
	writeWAV(t, staged, 2)
	require.NoError(t, os.Rename(staged, filepath.Join(dir, "call.wav")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.wav.tmp"), []byte("RIFF"), 0o644))

	require.Eventually(t, func() bool { return len(importer.all()) == 1 }, 5*time.Second, 10*time.Millisecond)

	calls := importer.all()
	assert.Equal(t, filepath.Join(dir, "call.wav"), calls[0].path)
	assert.Equal(t, 2*time.Second, calls[0].duration)

	cancel()
	assert.NoError(t, <-done)
}
