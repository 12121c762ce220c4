//go:build linux

package main

import (
	"fmt"

	"tle_zone_judge/internal/judge/sandbox"
	"tle_zone_judge/internal/judge/sandbox/container"
	"tle_zone_judge/internal/platform/config"
)

func initSandbox() error {
	return container.Init()
}

// newExecutor builds the configured backend behind a pool of SANDBOX_POOL_SIZE.
func newExecutor(cfg *config.Config) (sandbox.Executor, func(), error) {
	outputLimit := int64(cfg.SandboxOutputLimitKb) << 10
	switch cfg.SandboxBackend {
	case "process":
		if err := checkUnisolated(cfg); err != nil {
			return nil, nil, err
		}
		if err := sandbox.NamespacesSupported(); err != nil {
			return nil, nil, err
		}
		exec := sandbox.NewProcessExecutor(sandbox.ProcessOptions{
			SafetyFactor: cfg.SandboxSafetyFactor,
			OutputLimit:  outputLimit,
		})
		return sandbox.NewPool(exec, cfg.SandboxPoolSize), func() {}, nil
	case "container":
		exec, err := container.New(container.Options{
			PoolSize:     cfg.SandboxPoolSize,
			SafetyFactor: cfg.SandboxSafetyFactor,
			OutputLimit:  outputLimit,
		})
		if err != nil {
			return nil, nil, err
		}
		return sandbox.NewPool(exec, cfg.SandboxPoolSize), exec.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.SandboxBackend)
	}
}
