// Package coordinator implements the sloppy-quorum read/write path: the
// component a client-facing request lands on after the request router
// decides this node owns the key.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"dynamokv/internal/failuredetector"
	"dynamokv/internal/membership"
	"dynamokv/internal/metrics"
	"dynamokv/internal/ring"
	"dynamokv/internal/storage"
	"dynamokv/internal/vclock"
)

// deadline bounds how long Put/Get wait for peer acks before giving up
// on quorum, per spec.md §4.4.
const deadline = 100 * time.Millisecond

var (
	// ErrQuorum means fewer than N distinct nodes exist on the ring.
	ErrQuorum = errors.New("coordinator: fewer than N distinct nodes available")
	// ErrStaleClock means the submitted write was dominated by an
	// already-resident clock.
	ErrStaleClock = errors.New("coordinator: stale clock")
	// ErrNotEnoughWriteResponses means fewer than W acks (including the
	// coordinator's own local commit) arrived before the deadline.
	ErrNotEnoughWriteResponses = errors.New("coordinator: write quorum not met")
	// ErrNotEnoughReadResponses means fewer than R acks (including the
	// coordinator's own local read) arrived before the deadline.
	ErrNotEnoughReadResponses = errors.New("coordinator: read quorum not met")
)

// Coordinator owns the sloppy-quorum Put/Get/Delete path for the local
// node: build the preference list, commit locally, fan out, substitute
// onto fallback custodians on primary failure, and wait for quorum.
type Coordinator struct {
	selfID string
	n, w, r int

	ring     *ring.Ring
	detector *failuredetector.Detector
	store    *storage.Store
	locks    *StripeLock
	metrics  *metrics.Metrics
}

// New builds a Coordinator. n, w, r are the replication, write-quorum,
// and read-quorum parameters; callers are expected to have already
// validated w+r > n. m may be nil, which disables metrics recording.
func New(selfID string, n, w, r int, rg *ring.Ring, detector *failuredetector.Detector, store *storage.Store, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		selfID:   selfID,
		n:        n,
		w:        w,
		r:        r,
		ring:     rg,
		detector: detector,
		store:    store,
		locks:    NewStripeLock(),
		metrics:  m,
	}
}

// preferenceList returns successors(key, 2N), failing with ErrQuorum if
// fewer than N distinct nodes exist.
func (c *Coordinator) preferenceList(key string) ([]ring.Node, error) {
	pl, err := c.ring.Successors(key, 2*c.n)
	if err != nil {
		if errors.Is(err, ring.ErrRingEmpty) {
			return nil, ErrQuorum
		}
		return nil, err
	}
	if len(pl) < c.n {
		return nil, ErrQuorum
	}
	return pl, nil
}

// Put advances context by incrementing this node's own counter, then
// runs the shared commit-and-replicate path with a live (non-tombstone) value.
func (c *Coordinator) Put(key string, payload []byte, context vclock.Clock) (membership.Value, error) {
	clock := context.Copy()
	clock.Increment(c.selfID)
	value := membership.Value{Payload: payload, Clock: clock}
	return c.put(key, value)
}

// Delete is the EXPANSION tombstone path: same advance-commit-replicate
// path as Put, carrying an empty payload and Tombstone: true instead of
// a live value. It is not a separate subsystem — it goes through
// exactly the same quorum and reconciliation machinery.
func (c *Coordinator) Delete(key string, context vclock.Clock) (membership.Value, error) {
	clock := context.Copy()
	clock.Increment(c.selfID)
	value := membership.Value{Clock: clock, Tombstone: true}
	return c.put(key, value)
}

func (c *Coordinator) put(key string, value membership.Value) (membership.Value, error) {
	pl, err := c.preferenceList(key)
	if err != nil {
		return membership.Value{}, err
	}
	primaries := pl[:c.n]

	if err := c.localCommit(key, value); err != nil {
		return membership.Value{}, err
	}

	type outcome struct{ ok bool }
	resultsCh := make(chan outcome, len(primaries))
	inFlight := 0

	for i, p := range primaries {
		if p.ID() == c.selfID {
			continue
		}
		inFlight++
		go func(i int, primary ring.Node) {
			node, isNode := primary.(*membership.Node)
			if !isNode {
				resultsCh <- outcome{false}
				return
			}
			if node.ReplicatePut(key, value) {
				c.detector.MarkSuccess(node.ID())
				resultsCh <- outcome{true}
				return
			}
			c.detector.MarkError(node.ID())

			fallbackIdx := c.n + i - 1
			if fallbackIdx >= len(pl) {
				resultsCh <- outcome{false}
				return
			}
			fallback, isFallbackNode := pl[fallbackIdx].(*membership.Node)
			if !isFallbackNode {
				resultsCh <- outcome{false}
				return
			}
			ok := fallback.ReplicateHandoff(key, value, node.ID())
			if ok {
				c.detector.MarkSuccess(fallback.ID())
			} else {
				c.detector.MarkError(fallback.ID())
			}
			resultsCh <- outcome{ok}
		}(i, p)
	}

	acks := 1 // self already committed locally
	required := c.w
	timeout := time.After(deadline)

	for inFlight > 0 {
		select {
		case r := <-resultsCh:
			inFlight--
			if r.ok {
				acks++
			}
			if acks >= required {
				c.metrics.ObserveQuorumWrite(metrics.OutcomeSuccess)
				return value, nil
			}
		case <-timeout:
			if acks >= required {
				c.metrics.ObserveQuorumWrite(metrics.OutcomeSuccess)
				return value, nil
			}
			c.metrics.ObserveQuorumWrite(metrics.OutcomeFailure)
			return membership.Value{}, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughWriteResponses, acks, required)
		}
	}

	if acks >= required {
		c.metrics.ObserveQuorumWrite(metrics.OutcomeSuccess)
		return value, nil
	}
	c.metrics.ObserveQuorumWrite(metrics.OutcomeFailure)
	return membership.Value{}, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughWriteResponses, acks, required)
}

// localCommit applies the reconciliation rule against the node's own
// resident ValueList, under the key's stripe lock: a write strictly
// dominated by a resident clock is rejected as stale; otherwise
// dominated residents are dropped and the new value appended.
func (c *Coordinator) localCommit(key string, value membership.Value) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	resident, err := c.store.Get(key)
	if err != nil {
		return err
	}
	for _, r := range resident {
		if value.Clock.LessThan(r.Clock) {
			return ErrStaleClock
		}
	}

	kept := resident[:0]
	for _, r := range resident {
		if r.Clock.LessThan(value.Clock) {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, value)
	return c.store.Put(key, kept)
}

// Get fans out replicate_get to the first N primaries (skipping self),
// substituting the paired fallback on failure, and returns the union of
// the local ValueList and every value received before quorum or the
// deadline. It does not deduplicate — that is the request router's job.
func (c *Coordinator) Get(key string) (membership.ValueList, error) {
	pl, err := c.preferenceList(key)
	if err != nil {
		return nil, err
	}
	primaries := pl[:c.n]

	local, err := c.store.Get(key)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	values := append(membership.ValueList{}, local...)

	resultsCh := make(chan bool, len(primaries))
	inFlight := 0

	for i, p := range primaries {
		if p.ID() == c.selfID {
			continue
		}
		inFlight++
		go func(i int, primary ring.Node) {
			node, isNode := primary.(*membership.Node)
			if !isNode {
				resultsCh <- false
				return
			}
			if vl, ok := node.ReplicateGet(key); ok {
				c.detector.MarkSuccess(node.ID())
				mu.Lock()
				values = append(values, vl...)
				mu.Unlock()
				resultsCh <- true
				return
			}
			c.detector.MarkError(node.ID())

			fallbackIdx := c.n + i - 1
			if fallbackIdx >= len(pl) {
				resultsCh <- false
				return
			}
			fallback, isFallbackNode := pl[fallbackIdx].(*membership.Node)
			if !isFallbackNode {
				resultsCh <- false
				return
			}
			vl, ok := fallback.ReplicateGet(key)
			if ok {
				c.detector.MarkSuccess(fallback.ID())
				mu.Lock()
				values = append(values, vl...)
				mu.Unlock()
			} else {
				c.detector.MarkError(fallback.ID())
			}
			resultsCh <- ok
		}(i, p)
	}

	acks := 1 // local read always counts
	required := c.r
	timeout := time.After(deadline)

	for inFlight > 0 {
		select {
		case ok := <-resultsCh:
			inFlight--
			if ok {
				acks++
			}
			if acks >= required {
				c.metrics.ObserveQuorumRead(metrics.OutcomeSuccess)
				return snapshot(&mu, &values), nil
			}
		case <-timeout:
			if acks >= required {
				c.metrics.ObserveQuorumRead(metrics.OutcomeSuccess)
				return snapshot(&mu, &values), nil
			}
			c.metrics.ObserveQuorumRead(metrics.OutcomeFailure)
			return nil, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughReadResponses, acks, required)
		}
	}

	if acks >= required {
		c.metrics.ObserveQuorumRead(metrics.OutcomeSuccess)
		return snapshot(&mu, &values), nil
	}
	c.metrics.ObserveQuorumRead(metrics.OutcomeFailure)
	return nil, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughReadResponses, acks, required)
}

func snapshot(mu *sync.Mutex, values *membership.ValueList) membership.ValueList {
	mu.Lock()
	defer mu.Unlock()
	out := make(membership.ValueList, len(*values))
	copy(out, *values)
	return out
}
