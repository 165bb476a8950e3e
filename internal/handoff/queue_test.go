package handoff

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"dynamokv/internal/membership"
	"dynamokv/internal/ring"
	"dynamokv/internal/storage"
	"dynamokv/internal/vclock"
)

func openHandoffStore(t *testing.T) *storage.HandoffStore {
	t.Helper()
	e, err := storage.Open(filepath.Join(t.TempDir(), "handoff.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return storage.NewHandoffStore(e)
}

func TestReplayOnceDeliversAndDeletesRecord(t *testing.T) {
	delivered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case delivered <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	r := ring.New(4)
	target := membership.NewNode("target-1", u.Hostname(), port, 4)
	r.AddNode(target)

	store := openHandoffStore(t)
	val := membership.Value{Payload: []byte("v"), Clock: vclock.Clock{"n1": 1}}
	if err := store.Upsert("k", "target-1", val); err != nil {
		t.Fatal(err)
	}

	w := NewWorker(store, r, nil, nil)
	w.replayOnce()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatalf("expected the replica-put RPC to be delivered")
	}

	_, found, err := store.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("expected record to be deleted after all targets delivered")
	}
}

func TestReplayOnceSkipsUnknownTarget(t *testing.T) {
	r := ring.New(4)
	store := openHandoffStore(t)
	val := membership.Value{Payload: []byte("v")}
	if err := store.Upsert("k", "ghost-node", val); err != nil {
		t.Fatal(err)
	}

	w := NewWorker(store, r, nil, nil)
	w.replayOnce()

	rec, found, err := store.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("record for an unresolvable target must remain queued")
	}
	if len(rec.Targets) != 1 || rec.Targets[0] != "ghost-node" {
		t.Fatalf("unexpected targets after replay: %v", rec.Targets)
	}
}

func TestStartStopIsCooperative(t *testing.T) {
	r := ring.New(4)
	store := openHandoffStore(t)
	w := NewWorker(store, r, nil, nil)
	w.Start()
	w.Stop()
}
