// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/segflow/trackd/internal/config"
)

type stubDetector struct {
	cuda bool
	mps  bool
}

func (s stubDetector) cudaAvailable() bool { return s.cuda }
func (s stubDetector) mpsAvailable() bool  { return s.mps }

func TestResolveWith_ForceCPUWinsOverDetection(t *testing.T) {
	cfg := config.AppConfig{DeviceForceCPU: true, ModelSize: "large"}
	sel := resolveWith(cfg, stubDetector{cuda: true, mps: true})
	assert.Equal(t, KindCPU, sel.Kind)
	assert.Equal(t, "large", sel.ModelSize)
}

func TestResolveWith_PrefersCUDAOverMPS(t *testing.T) {
	cfg := config.AppConfig{ModelSize: "base"}
	sel := resolveWith(cfg, stubDetector{cuda: true, mps: true})
	assert.Equal(t, KindCUDA, sel.Kind)
}

func TestResolveWith_FallsBackToMPS(t *testing.T) {
	cfg := config.AppConfig{}
	sel := resolveWith(cfg, stubDetector{cuda: false, mps: true})
	assert.Equal(t, KindMPS, sel.Kind)
}

func TestResolveWith_FallsBackToCPU(t *testing.T) {
	cfg := config.AppConfig{}
	sel := resolveWith(cfg, stubDetector{cuda: false, mps: false})
	assert.Equal(t, KindCPU, sel.Kind)
}
