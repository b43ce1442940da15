package diskstore

import (
	"errors"
	"os"
	"sync"
)

var errWriterDone = errors.New("disk store writer already committed or aborted")

type fileWriter struct {
	sync.Mutex
	store     *Store
	file      *os.File
	tmpPath   string
	finalPath string
	n         int64
	done      bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.Lock()
	defer w.Unlock()
	if w.done {
		return 0, errWriterDone
	}
	n, err := w.file.Write(p)
	w.n += int64(n)
	return n, err
}

// Commit closes the temp file and moves it into place.
func (w *fileWriter) Commit() error {
	w.Lock()
	defer w.Unlock()
	if w.done {
		return errWriterDone
	}
	w.done = true
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		_ = os.Remove(w.tmpPath)
		return err
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.tmpPath)
		return err
	}
	w.store.Lock()
	defer w.store.Unlock()
	return w.store.commit(w.tmpPath, w.finalPath, w.n)
}

// Abort discards the temp file. Calling Abort after Commit is a no-op.
func (w *fileWriter) Abort() error {
	w.Lock()
	defer w.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	_ = w.file.Close()
	return os.Remove(w.tmpPath)
}
