package httpcache

import (
	"sync"
	"time"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// ScheduledRefresher re-warms a fixed request list on an interval, keeping
// hot endpoints (leaderboards in particular) populated between event-driven
// invalidations. A zero interval disables it; event-driven invalidation is
// the correctness mechanism, this is a safety net.
type ScheduledRefresher struct {
	warmer   *Warmer
	requests []WarmupRequest
	interval time.Duration

	logger observability.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewScheduledRefresher creates a refresher for the given request list
func NewScheduledRefresher(warmer *Warmer, requests []WarmupRequest, interval time.Duration, logger observability.Logger) *ScheduledRefresher {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &ScheduledRefresher{
		warmer:   warmer,
		requests: requests,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start launches the refresh loop; disabled when the interval is zero
func (s *ScheduledRefresher) Start() {
	if s.interval <= 0 || len(s.requests) == 0 {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop()
	})
}

func (s *ScheduledRefresher) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for _, req := range s.requests {
				if !s.warmer.Enqueue(req) {
					s.logger.Debug("scheduled refresh dropped, warm queue full", map[string]interface{}{
						"path": req.Path,
					})
				}
			}
		}
	}
}

// Stop halts the refresh loop
func (s *ScheduledRefresher) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
