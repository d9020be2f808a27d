package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Reader streams a file as it grows. Read returns appended bytes as they
// arrive and blocks at end of file until the next write. Cancelling the
// context ends a blocked Read with the context's error; Close ends it with
// io.EOF. Read and Close are not meant to race, close after reads stop.
type Reader struct {
	ctx     context.Context
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	log     *log.Logger
}

// Open starts following path from its current end, so only text appended
// after the call is streamed. The file must exist. The watch covers the
// parent directory, which is how rename-style replacements are noticed.
func Open(ctx context.Context, path string) (*Reader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve %s: %w", path, err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("unable to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Reader{
		ctx:     ctx,
		path:    abs,
		file:    f,
		watcher: watcher,
		log:     log.WithPrefix("follow"),
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		n, err := r.file.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		// A shrunken file means truncation, start over from the top.
		if fi, ferr := r.file.Stat(); ferr == nil {
			if pos, perr := r.file.Seek(0, io.SeekCurrent); perr == nil && fi.Size() < pos {
				r.log.Debug("file truncated, rewinding", "path", r.path)
				if _, err := r.file.Seek(0, io.SeekStart); err != nil {
					return 0, err
				}
				continue
			}
		}

		if err := r.wait(); err != nil {
			return 0, err
		}
	}
}

// wait blocks until the followed file changes, the watcher closes or the
// context ends. Events for other files in the directory are ignored.
func (r *Reader) wait() error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case event, ok := <-r.watcher.Events:
			if !ok {
				return io.EOF
			}
			if event.Name != r.path {
				continue
			}
			if event.Has(fsnotify.Create) {
				return r.reopen()
			}
			if event.Has(fsnotify.Write) {
				return nil
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return io.EOF
			}
			r.log.Debug("watch error", "path", r.path, "error", err)
		}
	}
}

// reopen switches to the file now occupying the followed name, reading it
// from the start.
func (r *Reader) reopen() error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	r.file.Close()
	r.file = f
	r.log.Debug("file replaced, following new copy", "path", r.path)
	return nil
}

// Close stops the watch and releases the file. A Read blocked on the watch
// returns io.EOF.
func (r *Reader) Close() error {
	return errors.Join(r.watcher.Close(), r.file.Close())
}
