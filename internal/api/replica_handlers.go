package api

import (
	"errors"
	"net/http"

	"dynamokv/internal/membership"
	"dynamokv/internal/replica"
	"dynamokv/internal/wire"

	"github.com/gin-gonic/gin"
)

// ReplicationPut handles POST /replication/put: a coordinator asking
// this node to apply a value as one of its replicas. Grounded on the
// teacher's InternalReplicate, but wire-framed (gob) rather than JSON,
// since this body crosses process boundaries only between peers.
func (h *Handler) ReplicationPut(c *gin.Context) {
	var rpc membership.PutRpc
	if err := wire.Decode(c.Request.Body, &rpc); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.replica.Put(rpc.Key, rpc.Value); err != nil {
		if errors.Is(err, replica.ErrStale) {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// ReplicationHandoff handles POST /replication/handoff: a coordinator
// asking this node to hold a value on behalf of a failed primary.
func (h *Handler) ReplicationHandoff(c *gin.Context) {
	var rpc membership.HandoffRpc
	if err := wire.Decode(c.Request.Body, &rpc); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.replica.Handoff(rpc.Key, rpc.Value, rpc.TargetID); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// ReplicationGet handles POST /replication/get: a coordinator asking
// this node for its raw resident ValueList (siblings and tombstones
// included) so it can fold the result into a quorum read.
func (h *Handler) ReplicationGet(c *gin.Context) {
	var key string
	if err := wire.Decode(c.Request.Body, &key); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	values, err := h.replica.Get(key)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	frame, err := wire.Encode(values)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", frame)
}
