package reportjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps session values in a JSON file so that every reportctl
// process of the same user sees the same marker. Writers serialise through
// an exclusive lock file next to the data file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := s.locked(ctx, func(values map[string]string) bool {
		v, ok = values[key]
		return false
	})
	return v, ok, err
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	return s.locked(ctx, func(values map[string]string) bool {
		values[key] = value
		return true
	})
}

func (s *FileStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	var written bool
	err := s.locked(ctx, func(values map[string]string) bool {
		if v, ok := values[key]; ok && v != "" {
			return false
		}
		values[key] = value
		written = true
		return true
	})
	return written, err
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.locked(ctx, func(values map[string]string) bool {
		if _, ok := values[key]; !ok {
			return false
		}
		delete(values, key)
		return true
	})
}

// locked runs fn over the decoded file contents while holding both the
// in-process mutex and the lock file. The file is rewritten when fn returns true.
func (s *FileStore) locked(ctx context.Context, fn func(values map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	if !fn(values) {
		return nil
	}
	return s.write(values)
}

func (s *FileStore) acquire(ctx context.Context) (func(), error) {
	lockPath := s.path + ".lock"
	for i := 0; i < 50; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("file store: lock: %w", err)
		}
		// A lock older than a few seconds belongs to a crashed process.
		if st, statErr := os.Stat(lockPath); statErr == nil && time.Since(st.ModTime()) > 5*time.Second {
			_ = os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("file store: lock %s busy", lockPath)
}

func (s *FileStore) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	tmpPath := f.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
