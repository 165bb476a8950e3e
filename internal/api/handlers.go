// Package api wires up the Gin HTTP router: the client-facing KV
// surface, the replica-to-replica RPC surface, and the admin/gossip
// surface, all mounted on one Handler.
package api

import (
	"errors"
	"net/http"

	"dynamokv/internal/coordinator"
	"dynamokv/internal/membership"
	"dynamokv/internal/metrics"
	"dynamokv/internal/replica"
	"dynamokv/internal/ring"

	"github.com/gin-gonic/gin"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	selfID      string
	ring        *ring.Ring
	coordinator *coordinator.Coordinator
	replica     *replica.Handlers
	gossip      *membership.Gossip
	metrics     *metrics.Metrics
}

// NewHandler creates a Handler.
func NewHandler(selfID string, r *ring.Ring, coord *coordinator.Coordinator, rep *replica.Handlers, gossip *membership.Gossip, m *metrics.Metrics) *Handler {
	return &Handler{
		selfID:      selfID,
		ring:        r,
		coordinator: coord,
		replica:     rep,
		gossip:      gossip,
		metrics:     m,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	// Client-facing KV API.
	r.POST("/put", h.Put)
	r.POST("/get", h.Get)
	r.POST("/delete", h.Delete)

	// Replica-to-replica RPCs, reached only from other nodes' coordinators.
	replication := r.Group("/replication")
	replication.POST("/put", h.ReplicationPut)
	replication.POST("/handoff", h.ReplicationHandoff)
	replication.POST("/get", h.ReplicationGet)

	// Admin/gossip surface.
	admin := r.Group("/admin")
	admin.POST("/gossip", h.AdminGossip)
	admin.GET("/membership", h.AdminMembership)
	admin.GET("/ring", h.AdminRing)
	admin.GET("/health", h.AdminHealth)
	admin.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}

// ─── Client-facing KV handlers ─────────────────────────────────────────────

type putRequest struct {
	Key     string `json:"key" binding:"required"`
	Data    string `json:"data"`
	Context string `json:"context"`
}

// Put handles POST /put.
// Body: {"key": "...", "data": "<base64>", "context": "<base64 vector clock>"}
func (h *Handler) Put(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.routeOrRedirect(c, req.Key, "/put") {
		return
	}

	payload, err := decodeBase64(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data: " + err.Error()})
		return
	}
	context, err := decodeContext(req.Context)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid context: " + err.Error()})
		return
	}

	val, err := h.coordinator.Put(req.Key, payload, context)
	if err != nil {
		h.writeQuorumError(c, err)
		return
	}

	newContext, err := encodeContext(val.Clock)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": req.Key, "context": newContext})
}

type getRequest struct {
	Key string `json:"key" binding:"required"`
}

type valueJSON struct {
	Data      string `json:"data"`
	Context   string `json:"context"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// Get handles POST /get.
// Body: {"key": "..."} — returns every unreconciled sibling, deduplicated.
func (h *Handler) Get(c *gin.Context) {
	var req getRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.routeOrRedirect(c, req.Key, "/get") {
		return
	}

	values, err := h.coordinator.Get(req.Key)
	if err != nil {
		h.writeQuorumError(c, err)
		return
	}

	out := make([]valueJSON, 0, len(values))
	for _, v := range dedupedValues(values) {
		ctxStr, err := encodeContext(v.Clock)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, valueJSON{
			Data:      encodeBase64(v.Payload),
			Context:   ctxStr,
			Tombstone: v.Tombstone,
		})
	}
	c.JSON(http.StatusOK, gin.H{"key": req.Key, "values": out})
}

type deleteRequest struct {
	Key     string `json:"key" binding:"required"`
	Context string `json:"context"`
}

// Delete handles POST /delete, the EXPANSION tombstone path. It goes
// through the same coordinator write path as Put.
func (h *Handler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.routeOrRedirect(c, req.Key, "/delete") {
		return
	}

	context, err := decodeContext(req.Context)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid context: " + err.Error()})
		return
	}

	val, err := h.coordinator.Delete(req.Key, context)
	if err != nil {
		h.writeQuorumError(c, err)
		return
	}

	newContext, err := encodeContext(val.Clock)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": req.Key, "context": newContext})
}

// writeQuorumError maps the coordinator's typed errors onto status codes.
func (h *Handler) writeQuorumError(c *gin.Context, err error) {
	if errors.Is(err, coordinator.ErrStaleClock) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stale clock", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
