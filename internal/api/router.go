package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"

	"dynamokv/internal/membership"
	"dynamokv/internal/ring"

	"github.com/gin-gonic/gin"
)

// routeOrRedirect implements the request router (spec.md §4.8): if
// ring.FindNode(key) names a different node, reply 307 with a Location
// header pointing at the coordinator and no body. Returns false when
// the caller should stop (a redirect was written).
func (h *Handler) routeOrRedirect(c *gin.Context, key, endpoint string) bool {
	owner, err := h.ring.FindNode(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if owner.ID() == h.selfID {
		return true
	}

	node, ok := owner.(*membership.Node)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "coordinator node has no address"})
		return false
	}
	location := fmt.Sprintf("http://%s:%d%s", node.Address(), node.Port(), endpoint)
	c.Header("Location", location)
	c.Status(http.StatusTemporaryRedirect)
	return false
}

// dedupedValues implements the request router's caller-side filtering:
// the coordinator returns the raw union of ValueLists with no
// deduplication, so the router collapses exact duplicates on
// (payload, clock) before handing the result to the client.
func dedupedValues(values membership.ValueList) membership.ValueList {
	seen := make(map[string]bool, len(values))
	out := make(membership.ValueList, 0, len(values))
	for _, v := range values {
		sig := valueSignature(v)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, v)
	}
	return out
}

// valueSignature combines a Value's payload (base64), its clock (sorted
// id:counter pairs) and its tombstone flag into a single comparable
// string: the key the request router dedupes on.
func valueSignature(v membership.Value) string {
	sig := base64.StdEncoding.EncodeToString(v.Payload) + "|"
	ids := make([]string, 0, len(v.Clock))
	for id := range v.Clock {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sig += fmt.Sprintf("%s:%d,", id, v.Clock[id])
	}
	if v.Tombstone {
		sig += "|tombstone"
	}
	return sig
}

// Compile-time check that *membership.Node satisfies ring.Node, which
// routeOrRedirect relies on when it type-asserts FindNode's result.
var _ ring.Node = (*membership.Node)(nil)
