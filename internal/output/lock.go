package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockAndWrite holds an exclusive lock on path+".lock" while atomically
// replacing path with data, so concurrent drove runs never interleave. The
// lock file is removed again before the lock is released.
func lockAndWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	lockPath := path + ".lock"
	lock, err := acquire(lockPath)
	if err != nil {
		return err
	}
	defer func() {
		os.Remove(lockPath)
		lock.Close()
	}()

	return atomicWrite(path, data)
}

// acquire locks lockPath. A waiter can end up holding a lock on a file the
// previous holder already unlinked; it then retries on the current file.
func acquire(lockPath string) (*flock.Flock, error) {
	for {
		lock := flock.New(lockPath)
		if err := lock.Lock(); err != nil {
			return nil, fmt.Errorf("acquire lock on %s: %w", lockPath, err)
		}
		held, heldErr := lock.Stat()
		onDisk, diskErr := os.Stat(lockPath)
		if heldErr == nil && diskErr == nil && os.SameFile(held, onDisk) {
			return lock, nil
		}
		lock.Close()
	}
}

// atomicWrite writes data to a temp file next to path and renames it into
// place. Readers see either the old file or the new one, never a prefix.
func atomicWrite(path string, data []byte) error {
	// Same directory keeps the rename on one filesystem.
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".drove-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}
