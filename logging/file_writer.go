package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// reopeningWriter appends to a log file and reopens it when the file it
// holds was removed or rotated away underneath it.
type reopeningWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	opened os.FileInfo
}

var _ io.WriteCloser = (*reopeningWriter)(nil)

func newReopeningWriter(path string) *reopeningWriter {
	return &reopeningWriter{path: path}
}

// Write implements the io.Writer interface.
func (w *reopeningWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "superstate-log: %v\n", err)
		return 0, err
	}
	return w.file.Write(p)
}

// Close implements the io.Closer interface.
func (w *reopeningWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.opened = nil
	return err
}

func (w *reopeningWriter) ensure() error {
	if w.file != nil {
		current, err := os.Stat(w.path)
		if err == nil && os.SameFile(current, w.opened) {
			return nil
		}
		w.file.Close()
		w.file = nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("inspecting log file: %w", err)
	}
	w.file, w.opened = file, info
	return nil
}
