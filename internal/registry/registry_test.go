package registry_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wdproxy/mitmproxy/internal/registry"
)

type fakeConn struct {
	net.Conn
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// TestRegistryDialIndependentPerCaller asserts that concurrent Dial calls
// against the same key each get their own upstream connection — the
// registry's per-key slot is a last-insert-wins bookkeeping record, not a
// shared physical resource (spec.md §5: per-Connection streams are not
// shared between owning tasks).
func TestRegistryDialIndependentPerCaller(t *testing.T) {
	r := registry.New()

	var dialCount atomic.Int32
	dial := func(context.Context) (net.Conn, error) {
		dialCount.Add(1)
		return &fakeConn{}, nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]*registry.Connection, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := r.Dial(context.Background(), "origin.test", 443, &fakeConn{}, dial)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = conn
		}(i)
	}
	wg.Wait()

	if got := dialCount.Load(); got != n {
		t.Fatalf("expected one dial per caller, got %d", got)
	}
	seen := make(map[*registry.Connection]bool)
	for _, c := range results {
		if c == nil || seen[c] {
			t.Fatalf("expected every caller to get its own distinct Connection")
		}
		seen[c] = true
	}
}

func TestRegistryReentrantInsertionClosesStale(t *testing.T) {
	r := registry.New()
	staleUpstream := &fakeConn{}

	first, err := r.Dial(context.Background(), "origin.test", 443, &fakeConn{}, func(context.Context) (net.Conn, error) {
		return staleUpstream, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	secondUpstream := &fakeConn{}
	second, err := r.Dial(context.Background(), "origin.test", 443, &fakeConn{}, func(context.Context) (net.Conn, error) {
		return secondUpstream, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0] != second {
		t.Fatalf("expected registry to hold only the second connection, got %v", snap)
	}
	if first.Open() || !staleUpstream.closed.Load() {
		t.Fatal("expected the stale connection to be closed when replaced")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := registry.New()
	upstream := &fakeConn{}
	client := &fakeConn{}
	conn, err := r.Dial(context.Background(), "a.test", 80, client, func(context.Context) (net.Conn, error) {
		return upstream, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	r.CloseAll()

	if conn.Open() {
		t.Fatal("expected connection to be closed")
	}
	if !upstream.closed.Load() || !client.closed.Load() {
		t.Fatal("expected both streams closed")
	}
	if len(r.Snapshot()) != 0 {
		t.Fatal("expected registry empty after CloseAll")
	}
}
