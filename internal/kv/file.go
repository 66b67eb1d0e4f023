package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/logging"
)

const fileVersion = 1

type fileDocument struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// File is a Store backed by one JSON document on disk. Every write takes
// an exclusive flock on a sibling lock file and replaces the document
// atomically, so several processes can share one data file.
type File struct {
	path     string
	lockPath string
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenFile opens (or lazily creates) the document at path.
func OpenFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("kv file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create kv directory: %w", err)
	}
	return &File{
		path:     path,
		lockPath: path + ".lock",
		logger:   logging.Component("kv"),
	}, nil
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

// Get implements Store.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}

	var (
		value string
		ok    bool
	)
	err := withFileLock(f.lockPath, func() error {
		doc := f.readLocked()
		value, ok = doc.Values[key]
		return nil
	})
	return value, ok, err
}

// Set implements Store.
func (f *File) Set(_ context.Context, key, value string) error {
	return f.update(func(values map[string]string) {
		values[key] = value
	})
}

// SetMany implements Batcher with a single document rewrite.
func (f *File) SetMany(_ context.Context, values map[string]string) error {
	return f.update(func(doc map[string]string) {
		for k, v := range values {
			doc[k] = v
		}
	})
}

// Delete implements Store.
func (f *File) Delete(_ context.Context, key string) error {
	return f.update(func(values map[string]string) {
		delete(values, key)
	})
}

// Close implements Store.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *File) update(fn func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return withFileLock(f.lockPath, func() error {
		doc := f.readLocked()
		fn(doc.Values)
		return writeAtomicJSON(f.path, doc)
	})
}

// readLocked loads the document. A missing, empty or unreadable document
// reads as empty; the next write replaces it.
func (f *File) readLocked() fileDocument {
	doc := fileDocument{Version: fileVersion, Values: map[string]string{}}

	payload, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn().Err(err).Str("path", f.path).Msg("read kv file")
		}
		return doc
	}
	if len(payload) == 0 {
		return doc
	}

	var loaded fileDocument
	if err := json.Unmarshal(payload, &loaded); err != nil {
		f.logger.Warn().Err(err).Str("path", f.path).Msg("discarding malformed kv file")
		return doc
	}
	if loaded.Values != nil {
		doc.Values = loaded.Values
	}
	return doc
}

func withFileLock(lockPath string, fn func() error) error {
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer lock.Close()
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, doc fileDocument) error {
	doc.Version = fileVersion
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
