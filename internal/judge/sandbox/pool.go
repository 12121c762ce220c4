package sandbox

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of sandboxes open at once across all workers.
type Pool struct {
	exec Executor
	sem  *semaphore.Weighted
}

func NewPool(exec Executor, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{exec: exec, sem: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Open(ctx context.Context) (Sandbox, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	sb, err := p.exec.Open(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return &pooledSandbox{Sandbox: sb, release: func() { p.sem.Release(1) }}, nil
}

type pooledSandbox struct {
	Sandbox
	once    sync.Once
	release func()
}

func (s *pooledSandbox) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Sandbox.Close()
		s.release()
	})
	return err
}
