package api

import (
	"net/http"

	"dynamokv/internal/membership"
	"dynamokv/internal/wire"

	"github.com/gin-gonic/gin"
)

// AdminGossip handles POST /admin/gossip: a peer pushing its cluster
// state snapshot as part of its fanout round.
func (h *Handler) AdminGossip(c *gin.Context) {
	var state membership.ClusterState
	if err := wire.Decode(c.Request.Body, &state); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	h.gossip.OnReceive(state)
	c.Status(http.StatusOK)
}

// AdminMembership handles GET /admin/membership: this node's current
// view of cluster membership, for operator inspection.
func (h *Handler) AdminMembership(c *gin.Context) {
	c.JSON(http.StatusOK, h.gossip.Snapshot())
}

type vnodeJSON struct {
	ID       string `json:"id"`
	Position uint64 `json:"position"`
	OwnerID  string `json:"owner_id"`
}

// AdminRing handles GET /admin/ring: the virtual node layout this node
// currently computes, for operator inspection. ring.VirtualNode's Owner
// field is an opaque ring.Node, so this flattens it to the owner's id
// rather than relying on JSON reflection over an unexported struct.
func (h *Handler) AdminRing(c *gin.Context) {
	vnodes := h.ring.VNodes()
	out := make([]vnodeJSON, 0, len(vnodes))
	for _, vn := range vnodes {
		out = append(out, vnodeJSON{ID: vn.ID, Position: vn.Position, OwnerID: vn.Owner.ID()})
	}
	c.JSON(http.StatusOK, gin.H{"vnodes": out})
}

// AdminHealth handles GET /admin/health: the liveness probe the failure
// detector polls.
func (h *Handler) AdminHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": h.selfID, "status": "ok"})
}
