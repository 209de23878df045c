package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// janitor runs a sweep function on a ticker until stopped.
type janitor struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startJanitor(every time.Duration, sweep func() (int, error), logger *zap.SugaredLogger) *janitor {
	j := &janitor{stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(j.done)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				n, err := sweep()
				if err != nil {
					logger.Warnw("session_sweep_failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Debugw("sessions_expired", "count", n)
				}
			}
		}
	}()
	return j
}

// Stop halts the janitor and waits for it to exit. Safe on nil and when
// called more than once.
func (j *janitor) Stop() {
	if j == nil {
		return
	}
	j.once.Do(func() { close(j.stop) })
	<-j.done
}
