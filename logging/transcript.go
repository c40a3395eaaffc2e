package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/acarl005/stripansi"
)

const TranscriptFilename = "summary.log"

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	errs    chan error
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
		errs:  make(chan error, 1),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) (int, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return 0, fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return len(data), nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			// Keep the first error for Close; later writes still go through.
			select {
			case af.errs <- err:
			default:
			}
		}
	}
}

// Close stops the async writer, waits for queued writes and closes the file.
// It returns the first write error, if any.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	af.stopped = true
	close(af.queue)
	af.mu.Unlock()

	af.wg.Wait()
	closeErr := af.file.Close()
	select {
	case err := <-af.errs:
		return fmt.Errorf("failed to write %s: %w", af.file.Name(), err)
	default:
		return closeErr
	}
}

// Transcript copies everything printed to the console into a plain text file.
// ANSI escape sequences are kept on the console and stripped from the file.
type Transcript struct {
	console io.Writer
	file    *AsyncFile
	path    string
}

// NewTranscript creates <dir>/summary.log and mirrors console into it
func NewTranscript(console io.Writer, dir string) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, TranscriptFilename)
	file, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	return &Transcript{console: console, file: file, path: path}, nil
}

func (t *Transcript) Write(p []byte) (int, error) {
	n, err := t.console.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := t.file.Write([]byte(stripansi.Strip(string(p)))); err != nil {
		return n, err
	}
	return n, nil
}

// Path returns the transcript file location
func (t *Transcript) Path() string {
	return t.path
}

// Close flushes the transcript file. The console writer is left open.
func (t *Transcript) Close() error {
	return t.file.Close()
}
