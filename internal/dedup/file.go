package dedup

import (
	"context"
	"slices"
)

// FileStore keeps processed keys as a JSON array in insertion order.
// Every mutation is lock, read, modify, atomic write, unlock.
type FileStore struct {
	file      *jsonFile
	retention int
}

// NewFileStore opens (or lazily creates) the store at path.
func NewFileStore(path string, retention int) (*FileStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	f, err := newJSONFile(path)
	if err != nil {
		return nil, &StoreError{Backend: "file", Op: "open", Err: err}
	}
	return &FileStore{file: f, retention: retention}, nil
}

func (s *FileStore) HasBeenProcessed(ctx context.Context, key string) (bool, error) {
	var keys []string
	found := false
	err := s.file.view(ctx, &keys, func() {
		found = slices.Contains(keys, key)
	})
	if err != nil {
		return false, &StoreError{Backend: "file", Op: "read", Err: err}
	}
	return found, nil
}

func (s *FileStore) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.TryMark(ctx, key)
	return err
}

func (s *FileStore) TryMark(ctx context.Context, key string) (bool, error) {
	var keys []string
	added := false
	err := s.file.update(ctx, &keys, func() (bool, error) {
		if slices.Contains(keys, key) {
			return false, nil
		}
		keys = trimOldest(append(keys, key), s.retention)
		added = true
		return true, nil
	})
	if err != nil {
		return false, &StoreError{Backend: "file", Op: "mark", Err: err}
	}
	return added, nil
}

// Keys returns the recorded keys, oldest first.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.file.view(ctx, &keys, func() {}); err != nil {
		return nil, &StoreError{Backend: "file", Op: "read", Err: err}
	}
	return keys, nil
}

func (s *FileStore) Close() error { return nil }
