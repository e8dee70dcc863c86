// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"os"
	"runtime"
)

// platformDetector probes the host for accelerator presence using cheap,
// dependency-free filesystem checks. No library in the ecosystem stack
// wraps "is there an NVIDIA/Apple accelerator here" generically enough to
// be worth adding a dependency for; this is a boundary check, not domain
// logic, so the standard library is the right tool.
type platformDetector struct{}

func (platformDetector) cudaAvailable() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidiactl"); err == nil {
		return true
	}
	return false
}

func (platformDetector) mpsAvailable() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}
