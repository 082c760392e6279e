package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rbruno/PokeCapture/internal/models"
	"github.com/Rbruno/PokeCapture/internal/services"
)

type CatalogHandler struct {
	catalog    *services.CatalogService
	collection *services.CollectionService
}

func NewCatalogHandler(catalog *services.CatalogService, collection *services.CollectionService) *CatalogHandler {
	return &CatalogHandler{
		catalog:    catalog,
		collection: collection,
	}
}

// ListEntries filters the catalog by name/id substring and, with
// filter=captured, by capture status
func (h *CatalogHandler) ListEntries(c *gin.Context) {
	var capturedOnly bool
	switch c.DefaultQuery("filter", "all") {
	case "all":
	case "captured":
		capturedOnly = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "filter must be 'all' or 'captured'"})
		return
	}

	entries := h.catalog.Search(c.Query("q"), capturedOnly, h.collection.IsCaptured)
	c.JSON(http.StatusOK, models.CatalogResponse{
		Entries: entries,
		Total:   len(entries),
		Loading: h.catalog.Loading(),
	})
}

func (h *CatalogHandler) GetEntry(c *gin.Context) {
	entry, ok := h.catalog.Entry(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "catalog entry not found"})
		return
	}

	record, captured := h.collection.Get(entry.ID)
	resp := gin.H{"entry": entry}
	if captured {
		resp["capture"] = record
	}
	c.JSON(http.StatusOK, resp)
}
