package main

import (
	"errors"

	"tle_zone_judge/internal/platform/config"
)

var errUnisolated = errors.New("the process backend shares the host filesystem between submissions; " +
	"set SANDBOX_ALLOW_UNISOLATED=true to run it anyway, or use SANDBOX_BACKEND=container")

// checkUnisolated refuses a backend without filesystem isolation unless the
// operator opted in.
func checkUnisolated(cfg *config.Config) error {
	if !cfg.SandboxAllowUnisolated {
		return errUnisolated
	}
	return nil
}
