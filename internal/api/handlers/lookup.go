package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rbruno/PokeCapture/internal/models"
	"github.com/Rbruno/PokeCapture/internal/services"
)

type LookupHandler struct {
	lookups *services.LookupManager
	catalog *services.CatalogService
}

func NewLookupHandler(lookups *services.LookupManager, catalog *services.CatalogService) *LookupHandler {
	return &LookupHandler{
		lookups: lookups,
		catalog: catalog,
	}
}

// OpenLookup closes any open lookup and loads the first card page for an entry.
// The response waits for the first page retries; a client that disconnects
// cancels the fetch.
func (h *LookupHandler) OpenLookup(c *gin.Context) {
	var req models.OpenLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, ok := h.catalog.Entry(req.EntryID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "catalog entry not found"})
		return
	}

	session := h.lookups.Open(c.Request.Context(), entry)
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *LookupHandler) GetLookup(c *gin.Context) {
	session, ok := h.lookups.Session(c.Param("session"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "lookup session not found"})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// LoadMore fetches the next page. A request that overlaps one in flight is a no-op.
func (h *LookupHandler) LoadMore(c *gin.Context) {
	session, ok := h.lookups.Session(c.Param("session"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "lookup session not found"})
		return
	}

	session.LoadMore(c.Request.Context())
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *LookupHandler) CloseLookup(c *gin.Context) {
	if !h.lookups.Close(c.Param("session")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "lookup session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}
