package sink

import (
	"context"
	"os"
	"sync"
)

// File appends newline-delimited JSON payloads to a local file. Used for
// local runs and tests where no dead-letter HTTP endpoint is configured.
type File struct {
	mu   sync.Mutex
	file *os.File
}

// NewFile opens (creating if necessary) a file for append-only writes.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{file: f}, nil
}

// SendBatch implements Sink.
func (f *File) SendBatch(_ context.Context, payloads [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range payloads {
		if _, err := f.file.Write(append(p, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink.
func (f *File) Close() error { return f.file.Close() }
