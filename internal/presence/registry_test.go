package presence

import (
	"sync"
	"testing"
)

// fakeConn is a minimal Conn for registry tests that records closes.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) WriteMessage(data []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegisterThenLookup(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	r.Register(1, conn)

	got, ok := r.Lookup(1)
	if !ok {
		t.Fatal("expected user 1 to be online")
	}
	if got != conn {
		t.Error("lookup returned a different connection")
	}
	if !r.IsOnline(1) {
		t.Error("IsOnline should be true after register")
	}
	if r.Count() != 1 {
		t.Errorf("expected count=1, got %d", r.Count())
	}
}

func TestIsOnlineReflectsMostRecentOperation(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	if r.IsOnline(1) {
		t.Error("expected offline before register")
	}

	r.Register(1, conn)
	if !r.IsOnline(1) {
		t.Error("expected online after register")
	}

	r.Deregister(1)
	if r.IsOnline(1) {
		t.Error("expected offline after deregister")
	}

	r.Register(1, conn)
	if !r.IsOnline(1) {
		t.Error("expected online after re-register")
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register(1, &fakeConn{})

	if _, ok := r.Deregister(1); !ok {
		t.Error("first deregister should report removal")
	}
	if _, ok := r.Deregister(1); ok {
		t.Error("second deregister should be a no-op")
	}
	if _, ok := r.Deregister(99); ok {
		t.Error("deregistering an unknown user should be a no-op")
	}
}

func TestDeregisterDoesNotCloseConnection(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Register(1, conn)

	got, ok := r.Deregister(1)
	if !ok || got != conn {
		t.Fatal("expected deregister to return the registered connection")
	}
	if conn.isClosed() {
		t.Error("deregister must hand ownership back without closing")
	}
}

func TestRegisterReplacesAndClosesSuperseded(t *testing.T) {
	r := NewRegistry()
	old := &fakeConn{}
	replacement := &fakeConn{}

	r.Register(1, old)
	r.Register(1, replacement)

	if !old.isClosed() {
		t.Error("superseded connection should be closed")
	}
	if replacement.isClosed() {
		t.Error("replacement connection must stay open")
	}

	got, _ := r.Lookup(1)
	if got != replacement {
		t.Error("lookup should return the replacement connection")
	}
	if r.Count() != 1 {
		t.Errorf("expected a single entry, got %d", r.Count())
	}
}

func TestReleaseOnlyRemovesMatchingConn(t *testing.T) {
	r := NewRegistry()
	old := &fakeConn{}
	replacement := &fakeConn{}

	r.Register(1, old)
	r.Register(1, replacement)

	// Stale cleanup from the old handler must not evict the new entry.
	if r.Release(1, old) {
		t.Error("releasing a superseded connection should be a no-op")
	}
	if !r.IsOnline(1) {
		t.Error("user should still be online via the replacement")
	}

	if !r.Release(1, replacement) {
		t.Error("releasing the current connection should remove the entry")
	}
	if r.IsOnline(1) {
		t.Error("user should be offline after release")
	}
}

func TestOnlineSnapshot(t *testing.T) {
	r := NewRegistry()
	for id := int64(1); id <= 5; id++ {
		r.Register(id, &fakeConn{})
	}
	r.Deregister(3)

	ids := r.Online()
	if len(ids) != 4 {
		t.Fatalf("expected 4 online users, got %d", len(ids))
	}
	for _, id := range ids {
		if id == 3 {
			t.Error("deregistered user must not appear in snapshot")
		}
	}
}

func TestConcurrentRegisterDeregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			conn := &fakeConn{}
			r.Register(id, conn)
			r.IsOnline(id)
			r.Release(id, conn)
		}(int64(i % 10))
	}
	wg.Wait()

	// All goroutines released their own connections; whatever remains must
	// be consistent between Count and Online.
	if got := len(r.Online()); got != r.Count() {
		t.Errorf("snapshot size %d disagrees with count %d", got, r.Count())
	}
}
