// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// RELIABILITY: Crash-safe file replacement for conversation saves
//
// AtomicWriteFile replaces the file at path with data via a temp file and
// rename, so readers only ever observe the old contents or the complete
// new contents. The temp file carries a ".tmp-" prefix; the history
// watcher relies on that prefix to ignore in-flight writes. The data is
// fsynced before the rename, so a crash after AtomicWriteFile returns
// cannot lose the write.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	// The temp file must live in the target directory: rename is only
	// atomic within a filesystem.
	tmp, err := writeTemp(dir, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}

// writeTemp writes data to a new ".tmp-" file in dir, fsyncs it, and
// returns its path. The temp file is removed on any failure.
func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return "", fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	name := f.Name()

	fail := func(stage string, err error) (string, error) {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("%s %s: %w", stage, name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fail("writing", err)
	}
	if err := f.Sync(); err != nil {
		return fail("syncing", err)
	}
	// Close before chmod and rename for Windows compatibility.
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("setting mode on %s: %w", name, err)
	}
	return name, nil
}
