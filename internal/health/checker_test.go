package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/metrics"
)

type fakeConn struct{ closed bool }

func (c *fakeConn) Prepare(ctx context.Context, q connector.BackendQuery) (connector.QueryHandle, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeConn) TransactionManager() (connector.TransactionManager, bool) { return nil, false }
func (c *fakeConn) Close() error                                            { c.closed = true; return nil }

type fakePool struct {
	fail bool
	conn *fakeConn
}

func (p *fakePool) Acquire(ctx context.Context, a *auth.Context) (connector.Connection, error) {
	if p.fail {
		return nil, errors.New("connection refused")
	}
	return p.conn, nil
}
func (p *fakePool) Close() error { return nil }

type fakePools struct {
	pools map[string]connector.Pool
}

func (f *fakePools) Pool(id string) (connector.Pool, bool) {
	p, ok := f.pools[id]
	return p, ok
}

func newTestChecker(t *testing.T, pools map[string]connector.Pool, dataSources []catalog.DataSource) *Checker {
	t.Helper()
	cat := catalog.New()
	if err := cat.Load(dataSources, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewChecker(cat, &fakePools{pools: pools}, metrics.New(), time.Hour, time.Second)
}

func TestProbeAllMarksHealthyPool(t *testing.T) {
	c := newTestChecker(t,
		map[string]connector.Pool{"ds1": &fakePool{conn: &fakeConn{}}},
		[]catalog.DataSource{{ID: "ds1", Type: "memory"}},
	)
	c.probeAll()

	st, ok := c.Status("ds1")
	if !ok || !st.Healthy {
		t.Fatalf("expected ds1 healthy, got %+v ok=%v", st, ok)
	}
}

func TestProbeAllMarksFailingPoolUnhealthy(t *testing.T) {
	c := newTestChecker(t,
		map[string]connector.Pool{"ds1": &fakePool{fail: true}},
		[]catalog.DataSource{{ID: "ds1", Type: "memory"}},
	)
	c.probeAll()

	st, ok := c.Status("ds1")
	if !ok || st.Healthy || st.Error == "" {
		t.Fatalf("expected ds1 unhealthy with an error, got %+v ok=%v", st, ok)
	}
}

func TestProbeUnknownPoolRecordsError(t *testing.T) {
	c := newTestChecker(t, map[string]connector.Pool{}, []catalog.DataSource{{ID: "ds1", Type: "memory"}})
	c.probeAll()

	st, ok := c.Status("ds1")
	if !ok || st.Healthy {
		t.Fatalf("expected ds1 unhealthy with no pool bound, got %+v ok=%v", st, ok)
	}
}
