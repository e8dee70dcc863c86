// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package queuestore

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeAtomic writes data to path such that a concurrent reader always sees
// either the previous full contents or the new full contents, never a
// partial write. renameio handles temp-file creation, fsync, and the final
// atomic rename.
func writeAtomic(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending queue file: %w", err)
	}
	defer func() {
		_ = pendingFile.Cleanup()
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write pending queue file: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace queue file: %w", err)
	}
	return nil
}
