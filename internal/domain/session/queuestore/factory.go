// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queuestore

import "fmt"

// Open constructs a Store for the named backend. "file" (the default)
// matches the original single-JSON-file layout; "badger" offers a durable
// KV-backed alternative for deployments that prefer it.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return OpenFileStore(path)
	case "badger":
		return OpenBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown queue store backend: %s", backend)
	}
}
