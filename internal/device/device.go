// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device resolves which accelerator the model backend should bind
// to. Selection is environment-driven rather than build-tag-gated: unlike
// the GPU transcoding path this process never links against a specific
// accelerator's SDK, so there is nothing for a build tag to switch between.
package device

import (
	"github.com/segflow/trackd/internal/config"
	"github.com/segflow/trackd/internal/log"
)

// Kind identifies the accelerator class selected for a process.
type Kind string

const (
	KindCUDA Kind = "cuda"
	KindMPS  Kind = "mps"
	KindCPU  Kind = "cpu"
)

// Selection is the resolved device plus the model size the caller
// requested, passed straight through to whatever constructs the
// ports.ModelBackend implementation.
type Selection struct {
	Kind      Kind
	ModelSize string
}

// detector abstracts platform accelerator probing so Resolve is testable
// without a real GPU present.
type detector interface {
	cudaAvailable() bool
	mpsAvailable() bool
}

// Resolve picks a Selection from cfg, logging the decision and the reason
// behind it. SAM2_DEMO_FORCE_CPU_DEVICE (surfaced here as cfg.DeviceForceCPU)
// always wins, matching the original system's escape hatch for
// accelerator-less debugging.
func Resolve(cfg config.AppConfig) Selection {
	return resolveWith(cfg, platformDetector{})
}

func resolveWith(cfg config.AppConfig, d detector) Selection {
	logger := log.WithComponent("device")
	sel := Selection{ModelSize: cfg.ModelSize}

	if cfg.DeviceForceCPU {
		sel.Kind = KindCPU
		logger.Info().Str(log.FieldDevice, string(sel.Kind)).Str("reason", "forced").Msg("accelerator selection")
		return sel
	}

	switch {
	case d.cudaAvailable():
		sel.Kind = KindCUDA
	case d.mpsAvailable():
		sel.Kind = KindMPS
	default:
		sel.Kind = KindCPU
	}

	logger.Info().
		Str(log.FieldDevice, string(sel.Kind)).
		Str("model_size", sel.ModelSize).
		Str("reason", "detected").
		Msg("accelerator selection")
	return sel
}
