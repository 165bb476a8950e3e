package membership

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"dynamokv/internal/vclock"
	"dynamokv/internal/wire"
)

func nodeForServer(t *testing.T, srv *httptest.Server) *Node {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return NewNode("peer-1", u.Hostname(), port, 8)
}

func TestReplicatePutDelivered200And400(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		n := nodeForServer(t, srv)

		ok := n.ReplicatePut("k", Value{Payload: []byte("v"), Clock: vclock.Clock{"n1": 1}})
		if !ok {
			t.Fatalf("status %d should count as delivered", status)
		}
		srv.Close()
	}
}

func TestReplicatePutOtherStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	n := nodeForServer(t, srv)

	if n.ReplicatePut("k", Value{Payload: []byte("v")}) {
		t.Fatalf("500 should not count as delivered")
	}
}

func TestReplicatePutShortCircuitsWhenInactive(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	n := nodeForServer(t, srv)
	n.SetActive(false)

	if n.ReplicatePut("k", Value{}) {
		t.Fatalf("inactive node must not report delivery")
	}
	if called {
		t.Fatalf("inactive node must not issue the RPC at all")
	}
}

func TestReplicateGetRoundTrip(t *testing.T) {
	want := ValueList{
		{Payload: []byte("a"), Clock: vclock.Clock{"n1": 1}},
		{Payload: []byte("b"), Clock: vclock.Clock{"n2": 1}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		if err := wire.Decode(r.Body, &key); err != nil {
			t.Fatalf("server failed to decode request: %v", err)
		}
		if key != "k" {
			t.Fatalf("server got key %q, want k", key)
		}
		frame, err := wire.Encode(want)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(frame)
	}))
	defer srv.Close()
	n := nodeForServer(t, srv)

	got, ok := n.ReplicateGet("k")
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if len(got) != 2 || string(got[0].Payload) != "a" || string(got[1].Payload) != "b" {
		t.Fatalf("unexpected ValueList: %+v", got)
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/admin/health") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	n := nodeForServer(t, srv)

	if !n.CheckHealth() {
		t.Fatalf("expected healthy node to report true")
	}
}
