package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval is returned by StartBackground for a non-positive
// interval.
var ErrInvalidInterval = errors.New("background interval must be positive")

// StartBackground runs task every interval while a session is active.
// Ticks that find no session are skipped. A failing or panicking task is
// logged and counted; it never ends the session and the schedule keeps
// running. The returned stop function is idempotent and waits for a
// running task to return.
func (m *Manager) StartBackground(name string, interval time.Duration, task func(ctx context.Context) error) (stop func(), err error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	done := make(chan struct{})
	ticker := m.clock.NewTicker(interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !m.store.Authenticated() {
					continue
				}
				if err := m.runTask(ctx, task); err != nil {
					m.metrics.Inc(MetricBackgroundFailure)
					m.logger.Warn("goSession: background task failed", "task", name, "err", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (m *Manager) runTask(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}
