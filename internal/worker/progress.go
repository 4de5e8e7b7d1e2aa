package worker

import (
	"context"
	"sync"
	"time"
)

// progressTicker reports synthetic progress while a long external call runs.
// Stop blocks until the reporting goroutine has exited, so nothing it emits
// can arrive after the caller's final update.
type progressTicker struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func startProgressTicker(ctx context.Context, interval time.Duration, from, step, ceiling int, report func(context.Context, int)) *progressTicker {
	tickCtx, cancel := context.WithCancel(ctx)
	t := &progressTicker{cancel: cancel}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		current := from
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				if current >= ceiling {
					continue
				}
				current = min(current+step, ceiling)
				report(tickCtx, current)
			}
		}
	}()
	return t
}

func (t *progressTicker) Stop() {
	t.once.Do(func() {
		t.cancel()
		t.wg.Wait()
	})
}
