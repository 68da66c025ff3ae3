// Package health periodically probes each configured data source's
// backend reachability, exposing a point-in-time status snapshot to
// internal/api. Adapted from the teacher's internal/health (which
// pinged a tenant's pool every interval) with tenants replaced by
// catalog.DataSource and the probe itself delegated to the connector's
// Pool rather than a hardcoded Postgres/MySQL ping.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/metrics"
)

// Status is one data source's most recently observed reachability.
type Status struct {
	DataSourceID string
	Healthy      bool
	LastChecked  time.Time
	Error        string
}

// Pools resolves the live connector.Pool bound to a data source id, so
// the checker can Acquire a throwaway connection without owning pool
// lifecycle itself.
type Pools interface {
	Pool(dataSourceID string) (connector.Pool, bool)
}

// Checker runs a periodic reachability probe against every data source
// in the catalog, storing the last result per id behind a mutex — the
// same poll-and-snapshot shape as the teacher's Checker, generalised
// from a fixed two-backend-type ping to any connector.Pool.
type Checker struct {
	catalog *catalog.Catalog
	pools   Pools
	metrics *metrics.Metrics
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	statuses map[string]Status

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewChecker(cat *catalog.Catalog, pools Pools, m *metrics.Metrics, interval, timeout time.Duration) *Checker {
	return &Checker{
		catalog:  cat,
		pools:    pools,
		metrics:  m,
		interval: interval,
		timeout:  timeout,
		statuses: make(map[string]Status),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the periodic probe loop in the background.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		c.probeAll()
		for {
			select {
			case <-ticker.C:
				c.probeAll()
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Checker) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Probe runs one reachability pass over every data source immediately,
// without waiting for the next ticker interval. Exported so callers
// (and tests) outside this package can force a fresh snapshot.
func (c *Checker) Probe() {
	c.probeAll()
}

func (c *Checker) probeAll() {
	for _, ds := range c.catalog.DataSources() {
		c.probeOne(ds)
	}
}

func (c *Checker) probeOne(ds catalog.DataSource) {
	pool, ok := c.pools.Pool(ds.ID)
	status := Status{DataSourceID: ds.ID, LastChecked: time.Now()}
	if !ok {
		status.Error = "no pool bound for data source"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		conn, err := pool.Acquire(ctx, &auth.Context{ServiceUser: true, Username: "health-check"})
		cancel()
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Healthy = true
			_ = conn.Close()
		}
	}

	c.mu.Lock()
	c.statuses[ds.ID] = status
	c.mu.Unlock()
}

// Status returns the last observed status for a data source.
func (c *Checker) Status(dataSourceID string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[dataSourceID]
	return s, ok
}

// AllStatuses returns a snapshot of every data source's last status.
func (c *Checker) AllStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Status, 0, len(c.statuses))
	for _, s := range c.statuses {
		out = append(out, s)
	}
	return out
}
