// Package handoff runs the background hinted-handoff replay worker: it
// owns no state of its own beyond a durable map of pending records (see
// internal/storage.HandoffStore) and periodically tries to deliver each
// one to the primary node it was originally meant for.
package handoff

import (
	"sync"
	"time"

	"dynamokv/internal/failuredetector"
	"dynamokv/internal/membership"
	"dynamokv/internal/metrics"
	"dynamokv/internal/ring"
	"dynamokv/internal/storage"
)

// replayInterval is how often the worker iterates the handoff queue.
const replayInterval = 5 * time.Second

// Worker replays pending HandoffRecords to their intended targets.
type Worker struct {
	store    *storage.HandoffStore
	ring     *ring.Ring
	detector *failuredetector.Detector
	metrics  *metrics.Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker builds a handoff Worker. Start must be called to begin
// background replay. detector and m may be nil, which disables peer
// health reporting and metrics recording respectively.
func NewWorker(store *storage.HandoffStore, r *ring.Ring, detector *failuredetector.Detector, m *metrics.Metrics) *Worker {
	return &Worker{
		store:    store,
		ring:     r,
		detector: detector,
		metrics:  m,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background replay loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the loop to exit and waits for it to finish. Any record
// still pending when Stop is called remains queued for the next process
// start to pick up.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(replayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.replayOnce()
		}
	}
}

// replayOnce iterates one consistent snapshot of the handoff queue,
// attempting delivery of each record's targets in order. Successfully
// delivered targets are removed from the record; an emptied record is
// deleted, otherwise it is rewritten with the surviving targets.
func (w *Worker) replayOnce() {
	type pending struct {
		key string
		rec storage.HandoffRecord
	}
	var snapshot []pending

	_ = w.store.Scan(func(key string, rec storage.HandoffRecord) error {
		snapshot = append(snapshot, pending{key, rec})
		return nil
	})

	w.metrics.SetHandoffQueueDepth(len(snapshot))

	for _, p := range snapshot {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.replayRecord(p.key, p.rec)
	}
}

func (w *Worker) replayRecord(key string, rec storage.HandoffRecord) {
	var remaining []string
	for _, targetID := range rec.Targets {
		node, ok := w.ring.GetNode(targetID)
		if !ok {
			remaining = append(remaining, targetID)
			continue
		}
		peer, isNode := node.(*membership.Node)
		if !isNode || !peer.Active() {
			remaining = append(remaining, targetID)
			continue
		}
		if peer.ReplicatePut(key, rec.Data) {
			if w.detector != nil {
				w.detector.MarkSuccess(peer.ID())
			}
		} else {
			if w.detector != nil {
				w.detector.MarkError(peer.ID())
			}
			remaining = append(remaining, targetID)
		}
	}

	if len(remaining) == 0 {
		_ = w.store.Delete(key)
		return
	}
	rec.Targets = remaining
	_ = w.store.Put(key, rec)
}
