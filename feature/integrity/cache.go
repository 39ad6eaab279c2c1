package integrity

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const reportKey = "report"

// reportCache keeps the last report for ttl. Concurrent misses share one build.
type reportCache struct {
	mu     sync.RWMutex
	report *Report
	built  time.Time
	ttl    time.Duration
	now    func() time.Time
	sf     singleflight.Group
}

func newReportCache(ttl time.Duration) *reportCache {
	return &reportCache{ttl: ttl, now: time.Now}
}

func (c *reportCache) fresh() (*Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil || c.ttl <= 0 {
		return nil, false
	}
	if c.now().Sub(c.built) > c.ttl {
		return nil, false
	}
	return c.report, true
}

// get returns the cached report or builds a new one.
func (c *reportCache) get(build func() (*Report, error)) (*Report, error) {
	if r, ok := c.fresh(); ok {
		return r, nil
	}

	result, err, _ := c.sf.Do(reportKey, func() (interface{}, error) {
		// Double-check after joining the flight
		if r, ok := c.fresh(); ok {
			return r, nil
		}

		r, err := build()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.report = r
		c.built = c.now()
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Report), nil
}

// invalidate drops the cached report.
func (c *reportCache) invalidate() {
	c.mu.Lock()
	c.report = nil
	c.mu.Unlock()
}
