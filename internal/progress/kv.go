package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryKV keeps records in process memory
type MemoryKV struct {
	mu   sync.RWMutex
	recs map[string]Record
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{recs: make(map[string]Record)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = rec
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, key)
	return nil
}

// FileKV stores one JSON file per key under a directory
type FileKV struct {
	dir string
}

// NewFileKV creates dir if needed
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("progress: create %s: %w", dir, err)
	}
	return &FileKV{dir: dir}, nil
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, fileNameReplacer.Replace(key)+".json")
}

func (f *FileKV) Get(_ context.Context, key string) (*Record, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("progress: decode %s: %w", key, err)
	}
	return &rec, nil
}

// Set writes through a temp file so a crash never leaves a torn record
func (f *FileKV) Set(_ context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".progress-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
