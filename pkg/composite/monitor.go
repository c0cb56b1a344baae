package composite

import "time"

// usageMonitor re-runs a sampling function on a fixed interval in a
// background goroutine. Stopping it wakes the sleeper immediately; it
// never blocks a foreground operation because the sampled result is
// published as an atomic snapshot by the function itself.
type usageMonitor struct {
	quit chan struct{}
	done chan struct{}
}

func startUsageMonitor(interval time.Duration, sample func()) *usageMonitor {
	m := &usageMonitor{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sample()
			case <-m.quit:
				return
			}
		}
	}()
	return m
}

func (m *usageMonitor) stop() {
	close(m.quit)
	<-m.done
}
