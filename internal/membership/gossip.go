package membership

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"dynamokv/internal/metrics"
	"dynamokv/internal/ring"
	"dynamokv/internal/wire"
)

// Status is a gossiped node's membership state.
type Status int

const (
	// Active means the node is believed to be a live cluster member.
	Active Status = iota
	// Killed means the node announced its own departure.
	Killed
)

// NodeState is one entry in the gossiped cluster map.
type NodeState struct {
	ID          string
	Address     string
	Port        int
	Tokens      int
	Status      Status
	Incarnation uint64
}

// ClusterState is the full gossiped snapshot: every known node's NodeState.
type ClusterState map[string]NodeState

// gossipInterval is how often the background loop fans state out to
// randomly chosen peers.
const gossipInterval = 3 * time.Second

// fanout is how many peers each gossip round targets.
const fanout = 2

// rescueProbability is the chance, each round, that the bootstrap
// servers are also gossiped to directly — a rescue path for when churn
// has disconnected this node from the rest of the cluster's gossip graph.
const rescueProbability = 0.05

// Gossip owns the cluster membership view and keeps it eventually
// consistent via periodic, randomized fanout with other nodes.
type Gossip struct {
	mu    sync.Mutex
	state ClusterState

	selfID  string
	address string
	port    int
	tokens  int

	ring             *ring.Ring
	dataDir          string
	bootstrapServers []string
	httpClient       *http.Client
	metrics          *metrics.Metrics

	// OnJoin, if set, is invoked whenever a node is added to the ring —
	// at Start for self, and in OnReceive for newly discovered or
	// reactivated peers — so the caller can register it with its own
	// failure detector.
	OnJoin func(*Node)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewGossip builds the gossip subsystem for this node. It does not start
// the background loop or bootstrap — call Start for that, once the
// caller is ready to accept /admin/gossip traffic.
func NewGossip(selfID, address string, port, tokens int, r *ring.Ring, dataDir string, bootstrapServers []string) *Gossip {
	return &Gossip{
		state:            make(ClusterState),
		selfID:           selfID,
		address:          address,
		port:             port,
		tokens:           tokens,
		ring:             r,
		dataDir:          dataDir,
		bootstrapServers: bootstrapServers,
		httpClient:       &http.Client{Timeout: dialTimeout},
		stopCh:           make(chan struct{}),
	}
}

// SetMetrics attaches the metrics bundle propagated to every Node handle
// this Gossip instance creates (self at Start, and peers learned via
// OnReceive). Call before Start so the self node picks it up too.
func (g *Gossip) SetMetrics(m *metrics.Metrics) { g.metrics = m }

func (g *Gossip) incarnationPath() string {
	return filepath.Join(g.dataDir, fmt.Sprintf("%s:%d-gossip", g.address, g.port))
}

func (g *Gossip) loadIncarnation() uint64 {
	data, err := os.ReadFile(g.incarnationPath())
	if err != nil {
		return 1
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 1
	}
	return n
}

func (g *Gossip) persistIncarnation(n uint64) error {
	if err := os.MkdirAll(g.dataDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(g.incarnationPath(), []byte(strconv.FormatUint(n, 10)), 0o644)
}

// Start reads the persisted incarnation counter, seeds this node's own
// ACTIVE state, bootstraps against the configured seed servers until at
// least one acknowledges, adds self to the ring, and starts the
// background gossip loop.
func (g *Gossip) Start() {
	incarnation := g.loadIncarnation() + 1

	g.mu.Lock()
	g.state[g.selfID] = NodeState{
		ID:          g.selfID,
		Address:     g.address,
		Port:        g.port,
		Tokens:      g.tokens,
		Status:      Active,
		Incarnation: incarnation,
	}
	g.mu.Unlock()

	self := NewNode(g.selfID, g.address, g.port, g.tokens)
	self.SetMetrics(g.metrics)
	g.ring.AddNode(self)
	if g.OnJoin != nil {
		g.OnJoin(self)
	}

	g.bootstrap()

	g.wg.Add(1)
	go g.loop()
}

// bootstrap sends this node's state to every configured seed server,
// retrying until at least one acknowledges, or there are no seeds.
func (g *Gossip) bootstrap() {
	if len(g.bootstrapServers) == 0 {
		return
	}
	for {
		acked := false
		for _, addr := range g.bootstrapServers {
			if g.sendTo(addr) {
				acked = true
			}
		}
		if acked {
			return
		}
		select {
		case <-g.stopCh:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// loop is the background fanout goroutine; it exits when Stop closes
// stopCh.
func (g *Gossip) loop() {
	defer g.wg.Done()
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.round()
		}
	}
}

// round performs one fanout: pick live peers at random, gossip to
// `fanout` of them, and with rescueProbability also gossip to the
// bootstrap servers directly.
func (g *Gossip) round() {
	g.metrics.IncGossipRoundsSent()

	peers := g.liveRingPeers()
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })

	n := fanout
	if n > len(peers) {
		n = len(peers)
	}
	for _, addr := range peers[:n] {
		g.sendTo(addr)
	}

	if rand.Float64() < rescueProbability {
		for _, addr := range g.bootstrapServers {
			g.sendTo(addr)
		}
	}
}

// liveRingPeers returns address:port strings for every node this gossip
// instance currently believes is ACTIVE, excluding self.
func (g *Gossip) liveRingPeers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.state))
	for id, ns := range g.state {
		if id == g.selfID {
			continue
		}
		if ns.Status == Killed {
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d", ns.Address, ns.Port))
	}
	return out
}

// sendTo gossips the full cluster state to one peer's /admin/gossip
// endpoint. Returns whether the send succeeded.
func (g *Gossip) sendTo(addr string) bool {
	body, err := wire.Encode(g.Snapshot())
	if err != nil {
		return false
	}
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/admin/gossip", addr), bytes.NewReader(body))
	if err != nil {
		return false
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Snapshot returns a copy of the current cluster state, suitable for
// serializing onto the wire.
func (g *Gossip) Snapshot() ClusterState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(ClusterState, len(g.state))
	for id, ns := range g.state {
		out[id] = ns
	}
	return out
}

// OnReceive merges a remote cluster state snapshot into the local view,
// per entry: adopt an unknown id outright (adding it to the ring if it
// is ACTIVE);
// adopt a strictly-newer incarnation, adjusting ring membership on an
// ACTIVE<->KILLED status transition; otherwise ignore the entry as stale.
func (g *Gossip) OnReceive(other ClusterState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, incoming := range other {
		local, known := g.state[id]
		switch {
		case !known:
			g.state[id] = incoming
			if incoming.Status == Active {
				node := NewNode(incoming.ID, incoming.Address, incoming.Port, incoming.Tokens)
				node.SetMetrics(g.metrics)
				g.ring.AddNode(node)
				if g.OnJoin != nil {
					g.OnJoin(node)
				}
			}
		case incoming.Incarnation > local.Incarnation:
			g.state[id] = incoming
			if local.Status == Active && incoming.Status == Killed {
				g.ring.RemoveNode(id)
			} else if local.Status == Killed && incoming.Status == Active {
				node := NewNode(incoming.ID, incoming.Address, incoming.Port, incoming.Tokens)
				node.SetMetrics(g.metrics)
				g.ring.AddNode(node)
				if g.OnJoin != nil {
					g.OnJoin(node)
				}
			}
		default:
			// Stale or duplicate entry; ignore.
		}
	}
}

// Stop increments this node's own incarnation, marks it KILLED, performs
// one best-effort final gossip round, tears down the background loop,
// and then persists the new incarnation to disk.
func (g *Gossip) Stop() {
	g.mu.Lock()
	self := g.state[g.selfID]
	self.Incarnation++
	self.Status = Killed
	g.state[g.selfID] = self
	incarnation := self.Incarnation
	g.mu.Unlock()

	g.round()

	close(g.stopCh)
	g.wg.Wait()

	_ = g.persistIncarnation(incarnation)
}
