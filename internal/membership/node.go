// Package membership holds cluster identity: the remote peer handle
// (Node) used for replica RPCs, and the gossip protocol that keeps every
// node's view of the cluster eventually consistent.
package membership

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"dynamokv/internal/metrics"
	"dynamokv/internal/vclock"
	"dynamokv/internal/wire"
)

// dialTimeout bounds connect/read/write for every replica RPC. Kept short
// deliberately: a slow peer should fail fast and be handed off to a
// fallback custodian rather than stall the coordinator's quorum wait.
const dialTimeout = 50 * time.Millisecond

// Value is the wire/storage representation of one write.
type Value struct {
	Payload   []byte
	Clock     vclock.Clock
	Tombstone bool
}

// ValueList is a set of pairwise-concurrent Values for one key — the
// sibling set returned to clients instead of a single last-writer-wins
// value.
type ValueList []Value

// PutRpc is the body of a replica-put request.
type PutRpc struct {
	Key   string
	Value Value
}

// HandoffRpc is the body of a handoff-accept request.
type HandoffRpc struct {
	Key      string
	Value    Value
	TargetID string
}

// Node is a handle to one cluster member, reachable over HTTP. It
// implements ring.Node so it can be placed directly on the consistent
// hash ring.
type Node struct {
	id      string
	address string
	port    int
	tokens  int
	active  atomic.Bool

	httpClient *http.Client
	baseURL    string
	metrics    *metrics.Metrics
}

// NewNode builds a Node handle. active starts true: a freshly discovered
// peer is assumed healthy until the failure detector says otherwise.
func NewNode(id, address string, port, tokens int) *Node {
	n := &Node{
		id:      id,
		address: address,
		port:    port,
		tokens:  tokens,
		baseURL: fmt.Sprintf("http://%s:%d", address, port),
		httpClient: &http.Client{
			Timeout: dialTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: dialTimeout}).DialContext,
			},
		},
	}
	n.active.Store(true)
	return n
}

// SetMetrics attaches the metrics bundle this node's RPC latencies are
// recorded against. A nil bundle (the default) disables recording.
func (n *Node) SetMetrics(m *metrics.Metrics) { n.metrics = m }

// ID implements ring.Node.
func (n *Node) ID() string { return n.id }

// Address returns the host the node listens on.
func (n *Node) Address() string { return n.address }

// Port returns the node's listening port.
func (n *Node) Port() int { return n.port }

// Tokens returns the node's vnode multiplicity.
func (n *Node) Tokens() int { return n.tokens }

// Active reports whether the failure detector currently considers this
// node reachable.
func (n *Node) Active() bool { return n.active.Load() }

// SetActive is called by the failure detector when a health probe
// resolves.
func (n *Node) SetActive(v bool) { n.active.Store(v) }

// ReplicatePut sends value to this peer's replica-put endpoint. 200 and
// 400 both count as delivered: 400 means the peer rejected the write as
// stale, but the write still reached it, so there is nothing to hand off.
func (n *Node) ReplicatePut(key string, value Value) bool {
	if !n.Active() {
		return false
	}
	body, err := wire.Encode(PutRpc{Key: key, Value: value})
	if err != nil {
		return false
	}
	resp, err := n.post("/replication/put", "put", body)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusBadRequest
}

// ReplicateHandoff sends value to this peer's handoff-accept endpoint,
// carrying the id of the primary it was originally meant for.
func (n *Node) ReplicateHandoff(key string, value Value, intendedTargetID string) bool {
	if !n.Active() {
		return false
	}
	body, err := wire.Encode(HandoffRpc{Key: key, Value: value, TargetID: intendedTargetID})
	if err != nil {
		return false
	}
	resp, err := n.post("/replication/handoff", "handoff", body)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ReplicateGet fetches this peer's ValueList for key. A transport error
// or non-200 yields (nil, false); the caller treats that identically to
// a missing peer.
func (n *Node) ReplicateGet(key string) (ValueList, bool) {
	if !n.Active() {
		return nil, false
	}
	body, err := wire.Encode(key)
	if err != nil {
		return nil, false
	}
	resp, err := n.post("/replication/get", "get", body)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}
	var values ValueList
	if err := wire.Decode(resp.Body, &values); err != nil {
		return nil, false
	}
	return values, true
}

// CheckHealth probes the peer's admin health endpoint. Used exclusively
// by the failure detector's background probe loop.
func (n *Node) CheckHealth() bool {
	req, err := http.NewRequest(http.MethodGet, n.baseURL+"/admin/health", nil)
	if err != nil {
		return false
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (n *Node) post(path, operation string, body []byte) (*http.Response, error) {
	start := time.Now()
	req, err := http.NewRequest(http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := n.httpClient.Do(req)
	n.metrics.ObserveReplicaRPC(n.id, operation, time.Since(start))
	return resp, err
}
