package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/marmos91/dittoweb/pkg/content"
)

// MemoryContentStore keeps content in a map. Intended for tests and demos.
//
// Directories are implicit: an ID is a directory when another stored ID
// starts with it followed by a slash.
type MemoryContentStore struct {
	data map[content.ContentID][]byte

	// maxSizeBytes caps the total stored bytes; 0 means unlimited.
	maxSizeBytes uint64
	usedBytes    uint64

	mu sync.RWMutex
}

// NewMemoryContentStore creates an empty store. maxSizeBytes of 0 disables
// the size cap.
func NewMemoryContentStore(ctx context.Context, maxSizeBytes uint64) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		data:         make(map[content.ContentID][]byte),
		maxSizeBytes: maxSizeBytes,
	}, nil
}

func normalize(id content.ContentID) (content.ContentID, error) {
	clean, err := content.ParseID(string(id))
	if err != nil {
		return "", fmt.Errorf("content %s: %w", id, err)
	}
	return clean, nil
}

// lookup returns the stored bytes for id. Caller must hold mu.
func (s *MemoryContentStore) lookup(id content.ContentID) ([]byte, error) {
	key, err := normalize(id)
	if err != nil {
		return nil, err
	}

	if data, ok := s.data[key]; ok {
		return data, nil
	}

	prefix := string(key) + "/"
	if key == "." {
		prefix = ""
	}
	for existing := range s.data {
		if strings.HasPrefix(string(existing), prefix) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrNotRegularFile)
		}
	}

	return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
}

func (s *MemoryContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.lookup(id)
	if err != nil {
		return nil, 0, err
	}

	// Return a copy so writers cannot change bytes under an open reader.
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	return io.NopCloser(bytes.NewReader(dataCopy)), uint64(len(dataCopy)), nil
}

func (s *MemoryContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.lookup(id)
	if err != nil {
		return 0, err
	}

	return uint64(len(data)), nil
}

func (s *MemoryContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key, err := normalize(id)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[key]
	return exists, nil
}

func (s *MemoryContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := normalize(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := uint64(len(s.data[key]))
	newUsed := s.usedBytes - previous + uint64(len(data))
	if s.maxSizeBytes > 0 && newUsed > s.maxSizeBytes {
		return fmt.Errorf("content %s: store limit of %d bytes exceeded", id, s.maxSizeBytes)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.data[key] = stored
	s.usedBytes = newUsed

	return nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := normalize(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.data[key]; ok {
		s.usedBytes -= uint64(len(data))
		delete(s.data, key)
	}

	return nil
}

func (s *MemoryContentStore) Close() error {
	return nil
}
