package audiometer

import (
	"sync"
	"time"
)

// periodicTask is a cancellable fixed-interval task handle. The interval is
// short enough for sub-100ms responsiveness; cancellation waits for the
// in-flight iteration to finish.
type periodicTask struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// startPeriodic runs fn every interval until cancelled.
func startPeriodic(interval time.Duration, fn func()) *periodicTask {
	t := &periodicTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return t
}

// cancel stops the task and waits for it to exit. Safe to call repeatedly.
func (t *periodicTask) cancel() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	<-t.done
}
