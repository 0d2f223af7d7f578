package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofrs/flock"
)

const lockRetryDelay = 25 * time.Millisecond

// jsonFile serialises access to a JSON document shared between processes.
// An flock on "<path>.lock" guards cross-process access; mu guards goroutines
// of this process because a single flock handle is re-entrant.
type jsonFile struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func newJSONFile(path string) (*jsonFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return &jsonFile{path: path, lock: flock.New(path + ".lock")}, nil
}

// update runs fn under the exclusive lock. fn receives a pointer to the decoded
// document and returns whether it changed; changed documents are written atomically.
func (f *jsonFile) update(ctx context.Context, v any, fn func() (bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	locked, err := f.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", f.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", f.path)
	}
	defer func() {
		if err := f.lock.Unlock(); err != nil {
			log.Printf("[Dedup File:%s] Failed to release lock: %v", f.path, err)
		}
	}()

	if err := f.read(v); err != nil {
		return err
	}
	changed, err := fn()
	if err != nil || !changed {
		return err
	}
	return writeAtomic(f.path, v)
}

// view runs fn under a shared lock after decoding the document into v.
func (f *jsonFile) view(ctx context.Context, v any, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	locked, err := f.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", f.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", f.path)
	}
	defer func() {
		if err := f.lock.Unlock(); err != nil {
			log.Printf("[Dedup File:%s] Failed to release lock: %v", f.path, err)
		}
	}()

	if err := f.read(v); err != nil {
		return err
	}
	fn()
	return nil
}

// read decodes the file into v. A missing file leaves v untouched; an
// unreadable document is reported and treated as empty.
func (f *jsonFile) read(v any) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("[Dedup File:%s] Corrupt content, starting empty: %v", f.path, err)
		sentry.CaptureMessage(fmt.Sprintf("dedup file %s is corrupt and was reset: %v", f.path, err))
		reflect.ValueOf(v).Elem().SetZero()
	}
	return nil
}

func writeAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
