package simcard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Store is the backing medium of a simulated card. Block numbers are always
// block indexes; the card converts byte addresses before calling it.
type Store interface {
	Blocks() uint32
	ReadBlock(n uint32, p []byte) error
	WriteBlock(n uint32, p []byte) error
}

// MemoryStore keeps blocks in a map; unwritten blocks read as zeros.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks uint32
	data   map[uint32][]byte
}

// NewMemoryStore creates an empty store of the given size.
func NewMemoryStore(blocks uint32) *MemoryStore {
	return &MemoryStore{blocks: blocks, data: make(map[uint32][]byte)}
}

// Blocks returns the capacity in blocks.
func (m *MemoryStore) Blocks() uint32 {
	return m.blocks
}

// ReadBlock copies block n into p.
func (m *MemoryStore) ReadBlock(n uint32, p []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n >= m.blocks {
		return fmt.Errorf("block %d out of range", n)
	}
	if b, ok := m.data[n]; ok {
		copy(p, b)
		return nil
	}
	clear(p[:BlockSize])
	return nil
}

// WriteBlock stores a copy of p as block n.
func (m *MemoryStore) WriteBlock(n uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n >= m.blocks {
		return fmt.Errorf("block %d out of range", n)
	}
	b := make([]byte, BlockSize)
	copy(b, p)
	m.data[n] = b
	return nil
}

// FileStore backs the card with a raw disk image.
type FileStore struct {
	f      *os.File
	blocks uint32
}

// OpenFileStore opens an existing image. Its size is rounded down to whole blocks.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileStore{f: f, blocks: uint32(info.Size() / BlockSize)}, nil
}

// CreateFileStore creates (or truncates) an image of the given size.
func CreateFileStore(path string, blocks uint32) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(blocks) * BlockSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileStore{f: f, blocks: blocks}, nil
}

// Blocks returns the capacity in blocks.
func (s *FileStore) Blocks() uint32 {
	return s.blocks
}

// ReadBlock reads block n from the image.
func (s *FileStore) ReadBlock(n uint32, p []byte) error {
	if n >= s.blocks {
		return fmt.Errorf("block %d out of range", n)
	}
	_, err := s.f.ReadAt(p[:BlockSize], int64(n)*BlockSize)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// WriteBlock writes block n to the image.
func (s *FileStore) WriteBlock(n uint32, p []byte) error {
	if n >= s.blocks {
		return fmt.Errorf("block %d out of range", n)
	}
	_, err := s.f.WriteAt(p[:BlockSize], int64(n)*BlockSize)
	return err
}

// Close closes the image file.
func (s *FileStore) Close() error {
	return s.f.Close()
}
