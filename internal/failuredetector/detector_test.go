package failuredetector

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakePeer struct {
	id      string
	active  atomic.Bool
	healthy atomic.Bool
}

func newFakePeer(id string) *fakePeer {
	p := &fakePeer{id: id}
	p.active.Store(true)
	p.healthy.Store(true)
	return p
}

func (p *fakePeer) ID() string          { return p.id }
func (p *fakePeer) SetActive(v bool)    { p.active.Store(v) }
func (p *fakePeer) CheckHealth() bool   { return p.healthy.Load() }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestMarkErrorQuarantinesAtThreshold(t *testing.T) {
	p := newFakePeer("n1")
	p.healthy.Store(false)
	d := New(map[string]peer{"n1": p}, defaultThreshold)
	defer d.Close()

	for i := 0; i < defaultThreshold; i++ {
		d.MarkError("n1")
	}

	waitFor(t, func() bool { return !p.active.Load() })
}

func TestMarkSuccessResetsStreak(t *testing.T) {
	p := newFakePeer("n1")
	d := New(map[string]peer{"n1": p}, defaultThreshold)
	defer d.Close()

	d.MarkError("n1")
	d.MarkError("n1")
	d.MarkSuccess("n1")
	d.MarkError("n1")

	time.Sleep(50 * time.Millisecond)
	if !p.active.Load() {
		t.Fatalf("node should still be active: streak was reset before reaching threshold")
	}
}

func TestBackgroundProbeReactivatesHealthyNode(t *testing.T) {
	p := newFakePeer("n1")
	p.healthy.Store(false)
	d := New(map[string]peer{"n1": p}, defaultThreshold)
	defer d.Close()

	for i := 0; i < defaultThreshold; i++ {
		d.MarkError("n1")
	}
	waitFor(t, func() bool { return !p.active.Load() })

	p.healthy.Store(true)
	waitFor(t, func() bool { return p.active.Load() })
}

func TestCloseIsIdempotentAndLeavesQueueInactive(t *testing.T) {
	p := newFakePeer("n1")
	p.healthy.Store(false)
	d := New(map[string]peer{"n1": p}, defaultThreshold)

	for i := 0; i < defaultThreshold; i++ {
		d.MarkError("n1")
	}
	waitFor(t, func() bool { return !p.active.Load() })

	d.Close()
	d.Close()
	if p.active.Load() {
		t.Fatalf("node probed-unhealthy at shutdown should remain inactive")
	}
}
