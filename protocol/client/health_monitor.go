package client

import (
	"context"
	"sync"
	"time"

	"github.com/lavanet/ledgerclient/utils"
)

// HealthMonitor pings the network when the client has been idle for an interval.
// Successful traffic counts as a check and postpones the next ping.
type HealthMonitor struct {
	check    func(ctx context.Context) error
	ticker   *time.Ticker
	interval time.Duration
	lock     sync.RWMutex
	done     chan struct{}

	isHealthy bool
	lastCheck time.Time
}

func NewHealthMonitor(interval time.Duration, check func(ctx context.Context) error) *HealthMonitor {
	return &HealthMonitor{
		check:    check,
		ticker:   time.NewTicker(interval),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs a first check right away and then one per idle interval until ctx ends.
func (hm *HealthMonitor) Start(ctx context.Context) {
	go hm.startInner(ctx)
}

func (hm *HealthMonitor) startInner(ctx context.Context) {
	defer close(hm.done)
	defer hm.ticker.Stop()
	hm.runCheck(ctx)
	for {
		select {
		case <-hm.ticker.C:
			hm.runCheck(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (hm *HealthMonitor) runCheck(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, hm.interval)
	defer cancel()
	err := hm.check(checkCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		utils.FormatWarning("network health check failed", err)
	}
	hm.lock.Lock()
	defer hm.lock.Unlock()
	hm.isHealthy = err == nil
	hm.lastCheck = time.Now()
}

// LogSuccess records an operation that reached the network.
func (hm *HealthMonitor) LogSuccess() {
	hm.lock.Lock()
	defer hm.lock.Unlock()
	hm.isHealthy = true
	hm.lastCheck = time.Now()
	hm.ticker.Reset(hm.interval)
}

func (hm *HealthMonitor) IsHealthy() bool {
	hm.lock.RLock()
	defer hm.lock.RUnlock()
	return hm.isHealthy
}

// LastCheck is when health was last established, zero before the first check.
func (hm *HealthMonitor) LastCheck() time.Time {
	hm.lock.RLock()
	defer hm.lock.RUnlock()
	return hm.lastCheck
}

// Done is closed once the monitor stopped.
func (hm *HealthMonitor) Done() <-chan struct{} {
	return hm.done
}
