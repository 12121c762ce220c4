//go:build !linux

package main

import (
	"fmt"

	"tle_zone_judge/internal/judge/sandbox"
	"tle_zone_judge/internal/platform/config"
)

func initSandbox() error { return nil }

func newExecutor(cfg *config.Config) (sandbox.Executor, func(), error) {
	if cfg.SandboxBackend != "process" {
		return nil, nil, fmt.Errorf("backend %q needs linux", cfg.SandboxBackend)
	}
	if err := checkUnisolated(cfg); err != nil {
		return nil, nil, err
	}
	exec := sandbox.NewProcessExecutor(sandbox.ProcessOptions{SafetyFactor: cfg.SandboxSafetyFactor})
	return sandbox.NewPool(exec, cfg.SandboxPoolSize), func() {}, nil
}
