package master

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/thakyz/pluginmaster/internal/manifest"
)

const lockRetryDelay = 100 * time.Millisecond

func LockPath(fn string) string {
	return fn + ".lock"
}

// Lock takes an exclusive advisory lock guarding the master document at fn.
// It blocks until the lock is free or ctx is done.
func Lock(ctx context.Context, fn string) (*flock.Flock, error) {
	fileLock := flock.New(LockPath(fn))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire lock: %s is held by another process", LockPath(fn))
	}
	return fileLock, nil
}

// Encode renders entries as an indented JSON array.
func Encode(entries manifest.Manifests) ([]byte, error) {
	if entries == nil {
		entries = manifest.Manifests{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write replaces the master document at fn. The content is written to a
// temporary file next to fn first, so readers never observe a partial file.
func Write(fn string, entries manifest.Manifests) error {
	data, err := Encode(entries)
	if err != nil {
		return fmt.Errorf("failed to encode master: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(fn), filepath.Base(fn)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write master: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to write master: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile.Name(), fn); err != nil {
		return fmt.Errorf("failed to replace master %s: %w", fn, err)
	}
	return nil
}
