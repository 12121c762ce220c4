//go:build !linux

package sandbox

import (
	"context"

	"github.com/pkg/errors"
)

type ProcessOptions struct {
	TempRoot         string
	SafetyFactor     float64
	OutputLimit      int64
	SharedNamespaces bool
}

type ProcessExecutor struct{}

func NewProcessExecutor(opts ProcessOptions) *ProcessExecutor {
	return &ProcessExecutor{}
}

func (e *ProcessExecutor) Open(ctx context.Context) (Sandbox, error) {
	return nil, errors.Wrap(ErrInfrastructure, "process sandbox requires linux")
}

func NamespacesSupported() error {
	return errors.New("namespaces require linux")
}
