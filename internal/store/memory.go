package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Memory is an in-process store. With a spill directory every write is also
// persisted to one file per key so a restarted process starts warm.
type Memory struct {
	mu       sync.RWMutex
	values   map[string][]byte
	spillDir string
	logger   *slog.Logger
}

// NewMemory creates a memory store. An empty spillDir disables disk spill.
func NewMemory(spillDir string, logger *slog.Logger) (*Memory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if spillDir != "" {
		if err := os.MkdirAll(spillDir, 0o755); err != nil {
			return nil, fmt.Errorf("create spill dir: %w", err)
		}
	}
	return &Memory{
		values:   make(map[string][]byte),
		spillDir: spillDir,
		logger:   logger,
	}, nil
}

// Get returns a copy of the value under key, loading it from the spill
// directory on first access.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		return clone(v), nil
	}
	if m.spillDir == "" {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(m.spillPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read spill file: %w", err)
	}

	m.mu.Lock()
	if _, ok := m.values[key]; !ok {
		m.values[key] = data
	}
	m.mu.Unlock()
	return clone(data), nil
}

// Put stores value under key.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	v := clone(value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spillDir != "" {
		if err := writeFileAtomic(m.spillPath(key), v); err != nil {
			return fmt.Errorf("spill %s: %w", key, err)
		}
	}
	m.values[key] = v
	return nil
}

// Delete removes key from memory and the spill directory.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	if m.spillDir != "" {
		if err := os.Remove(m.spillPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove spill file: %w", err)
		}
	}
	return nil
}

// Close is a no-op; spilled files stay on disk.
func (m *Memory) Close() error {
	return nil
}

// Keys are hex encoded so ':' and '/' are safe in file names.
func (m *Memory) spillPath(key string) string {
	return filepath.Join(m.spillDir, hex.EncodeToString([]byte(key))+".snap")
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".spill-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
