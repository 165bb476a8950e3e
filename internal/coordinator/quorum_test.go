package coordinator

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"dynamokv/internal/failuredetector"
	"dynamokv/internal/membership"
	"dynamokv/internal/ring"
	"dynamokv/internal/storage"
	"dynamokv/internal/vclock"
	"dynamokv/internal/wire"
)

// peerServer starts an httptest server implementing the replica RPC
// surface with a fixed behavior, returning the membership.Node handle
// pointed at it.
func peerServer(t *testing.T, id string, putOK, handoffOK bool) (*membership.Node, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/replication/put", func(w http.ResponseWriter, r *http.Request) {
		if putOK {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/replication/handoff", func(w http.ResponseWriter, r *http.Request) {
		if handoffOK {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/replication/get", func(w http.ResponseWriter, r *http.Request) {
		frame, _ := wire.Encode(membership.ValueList{})
		w.Write(frame)
	})
	srv := httptest.NewServer(mux)

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	node := membership.NewNode(id, u.Hostname(), port, 4)
	return node, srv
}

func newTestCoordinator(t *testing.T, n, w, r int, nodes []*membership.Node) *Coordinator {
	t.Helper()
	rg := ring.New(8)
	rg.AddNode(membership.NewNode("self", "127.0.0.1", 0, 8))
	for _, nd := range nodes {
		rg.AddNode(nd)
	}

	store := storage.NewStore(mustOpenEngine(t))
	detector := failuredetector.New(nil, 0)
	return New("self", n, w, r, rg, detector, store, nil)
}

func mustOpenEngine(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestPutSucceedsWithQuorum(t *testing.T) {
	n1, s1 := peerServer(t, "n1", true, true)
	defer s1.Close()
	n2, s2 := peerServer(t, "n2", true, true)
	defer s2.Close()

	c := newTestCoordinator(t, 3, 2, 2, []*membership.Node{n1, n2})

	val, err := c.Put("k1", []byte("hello"), vclock.New())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if string(val.Payload) != "hello" {
		t.Fatalf("unexpected payload: %s", val.Payload)
	}
	if val.Clock.Get("self") != 1 {
		t.Fatalf("expected self clock to be incremented to 1, got %d", val.Clock.Get("self"))
	}
}

func TestPutFallsBackToHandoffOnPrimaryFailure(t *testing.T) {
	n1, s1 := peerServer(t, "n1", false, false) // primary fails put
	defer s1.Close()
	n2, s2 := peerServer(t, "n2", true, true)
	defer s2.Close()
	// fallback custodians: positions N..2N-1
	fb1, sf1 := peerServer(t, "fb1", true, true)
	defer sf1.Close()

	rg := ring.New(8)
	self := membership.NewNode("self", "127.0.0.1", 0, 8)
	rg.AddNode(self)
	rg.AddNode(n1)
	rg.AddNode(n2)
	rg.AddNode(fb1)

	store := storage.NewStore(mustOpenEngine(t))
	detector := failuredetector.New(nil, 0)
	c := New("self", 3, 2, 2, rg, detector, store, nil)

	_, err := c.Put("some-key-that-hashes-around", []byte("v"), vclock.New())
	// This is a best-effort smoke test: with only 4 nodes and N=3, the
	// exact preference-list placement is hash-dependent, so we only
	// assert the call doesn't panic and returns a deterministic result
	// shape (err may be ErrNotEnoughWriteResponses or nil depending on
	// which physical nodes land in the first N).
	_ = err
}

func TestPutRejectsStaleClock(t *testing.T) {
	c := newTestCoordinator(t, 1, 1, 1, nil)

	ctx := vclock.New()
	if _, err := c.Put("k", []byte("v1"), ctx); err != nil {
		t.Fatalf("first put: %v", err)
	}

	// Retry with the same (now-stale) empty context: the resident clock
	// {self:1} is not less than the new value's clock {} -- wait, the
	// new value's clock would be {self:1} again via Increment from an
	// empty context, so it's actually equal, not stale. Use a clock
	// strictly behind the resident one instead.
	resident := vclock.New()
	resident.Increment("self")
	resident.Increment("self") // self:2, ahead of what a fresh put would produce
	if err := c.localCommit("k", membership.Value{Payload: []byte("v2"), Clock: resident}); err != nil {
		t.Fatalf("seeding resident value: %v", err)
	}

	_, err := c.Put("k", []byte("v3"), vclock.New())
	if err == nil {
		t.Fatalf("expected ErrStaleClock for a write dominated by a resident clock")
	}
}

func TestGetReturnsLocalValueWithSingleNode(t *testing.T) {
	c := newTestCoordinator(t, 1, 1, 1, nil)

	if _, err := c.Put("k", []byte("v"), vclock.New()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	values, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(values) != 1 || string(values[0].Payload) != "v" {
		t.Fatalf("unexpected values: %+v", values)
	}
}

func TestPreferenceListErrQuorumWhenTooFewNodes(t *testing.T) {
	c := newTestCoordinator(t, 5, 3, 3, nil)
	if _, err := c.Put("k", []byte("v"), vclock.New()); err == nil {
		t.Fatalf("expected ErrQuorum with only 1 node and N=5")
	}
}
