package route

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// resultCache memoizes optimizer results. Keys are built from the request
// with coordinates rounded to the grid, so two requests that would expand
// the same search share an entry. The zone store's change hook purges the
// whole cache rather than hunting for affected keys.
type resultCache struct {
	lru *expirable.LRU[uint64, *Result]
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		size = 512
	}
	return &resultCache{
		lru: expirable.NewLRU[uint64, *Result](size, nil, ttl),
	}
}

func cacheKey(req Request) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.4f|%.4f|%.4f|%.4f|%.0f|%s|%s|%t|%t",
		round4(req.Start.Lat), round4(req.Start.Lng),
		round4(req.End.Lat), round4(req.End.Lng),
		req.AltitudeM, req.Priority, req.Method,
		req.AvoidNoFly, req.AvoidWeather,
	)
	if req.Weather != nil {
		fmt.Fprintf(h, "|%.0f|%.0f", req.Weather.WindSpeedKMH, req.Weather.WindDirectionDeg)
	}
	return h.Sum64()
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func (c *resultCache) get(req Request) (*Result, bool) {
	return c.lru.Get(cacheKey(req))
}

func (c *resultCache) put(req Request, r *Result) {
	c.lru.Add(cacheKey(req), r)
}

func (c *resultCache) purge() {
	c.lru.Purge()
}
