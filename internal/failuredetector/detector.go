// Package failuredetector tracks per-node RPC success/failure and
// quarantines nodes that look down, probing them in the background until
// they recover.
package failuredetector

import (
	"sync"
	"time"
)

// defaultThreshold is the number of consecutive errors that trips a
// node into quarantine when New is given threshold <= 0.
const defaultThreshold = 3

// probeBackoff is the pause between successive probes of the
// quarantine queue, so a persistently-down peer doesn't spin the
// background goroutine.
const probeBackoff = time.Second

// peer is anything the detector can mark active/inactive and health-check.
// internal/membership.Node satisfies this.
type peer interface {
	ID() string
	SetActive(bool)
	CheckHealth() bool
}

// Detector watches RPC outcomes reported by the coordinator and handoff
// worker, quarantining a node once its error streak reaches threshold,
// and re-admitting it once a background health probe succeeds.
type Detector struct {
	mu sync.Mutex

	peers      map[string]peer
	errCount   map[string]int
	inProgress map[string]bool
	queue      []string
	threshold  int

	cond    *sync.Cond
	running bool
	done    chan struct{}
}

// New creates a detector watching the given set of peers, keyed by id.
// peers may be nil; AddPeer can register peers discovered later.
// threshold <= 0 falls back to defaultThreshold.
func New(peers map[string]peer, threshold int) *Detector {
	if peers == nil {
		peers = make(map[string]peer)
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	d := &Detector{
		peers:      peers,
		errCount:   make(map[string]int),
		inProgress: make(map[string]bool),
		threshold:  threshold,
		running:    true,
		done:       make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// AddPeer registers a peer for monitoring, e.g. after it joins via gossip.
func (d *Detector) AddPeer(p peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[p.ID()] = p
}

// MarkSuccess resets a node's error streak to zero.
func (d *Detector) MarkSuccess(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errCount[id] = 0
}

// MarkError increments a node's error streak. Once it reaches threshold
// and the node isn't already being probed, the node is quarantined:
// marked inactive, enqueued, added to the in-progress set, and the
// background probe goroutine is woken.
func (d *Detector) MarkError(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.errCount[id]++
	if d.errCount[id] < d.threshold || d.inProgress[id] {
		return
	}

	if p, ok := d.peers[id]; ok {
		p.SetActive(false)
	}
	d.inProgress[id] = true
	d.queue = append(d.queue, id)
	d.cond.Signal()
}

// loop is the background probe goroutine: wait for a non-empty queue or
// shutdown, pop one id, probe it without holding the lock, and either
// re-enqueue it (still unhealthy) or mark it active again.
func (d *Detector) loop() {
	d.mu.Lock()
	for {
		for d.running && len(d.queue) == 0 {
			d.cond.Wait()
		}
		if !d.running {
			d.mu.Unlock()
			close(d.done)
			return
		}

		id := d.queue[0]
		d.queue = d.queue[1:]
		p, ok := d.peers[id]
		d.mu.Unlock()

		healthy := ok && p.CheckHealth()

		d.mu.Lock()
		if healthy {
			delete(d.inProgress, id)
			d.errCount[id] = 0
			if ok {
				p.SetActive(true)
			}
		} else {
			d.queue = append(d.queue, id)
		}
		d.mu.Unlock()

		time.Sleep(probeBackoff)
		d.mu.Lock()
	}
}

// Close stops the background goroutine cooperatively. Any nodes still
// queued remain inactive.
func (d *Detector) Close() {
	d.mu.Lock()
	d.running = false
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
