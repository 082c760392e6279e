package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Rbruno/PokeCapture/internal/models"
	"github.com/Rbruno/PokeCapture/internal/services"
)

// Save files are small; this bounds a hostile upload
const maxImportBytes = 10 << 20

type CollectionHandler struct {
	collection *services.CollectionService
	catalog    *services.CatalogService
	lookups    *services.LookupManager
}

func NewCollectionHandler(collection *services.CollectionService, catalog *services.CatalogService, lookups *services.LookupManager) *CollectionHandler {
	return &CollectionHandler{
		collection: collection,
		catalog:    catalog,
		lookups:    lookups,
	}
}

func (h *CollectionHandler) GetCollection(c *gin.Context) {
	c.JSON(http.StatusOK, models.CollectionResponse{
		Collection: h.collection.Records(),
		Stats:      h.collection.Stats(h.catalog.Len()),
	})
}

// SelectCard captures an entry with a card from the open lookup or a card sent inline
func (h *CollectionHandler) SelectCard(c *gin.Context) {
	var req models.SelectCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.catalog.Len() > 0 {
		if _, ok := h.catalog.Entry(req.EntryID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "catalog entry not found"})
			return
		}
	}

	var card models.CardRecord
	switch {
	case req.SessionID != "":
		session, ok := h.lookups.Session(req.SessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "lookup session not found"})
			return
		}
		if session.Subject().ID != req.EntryID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookup session belongs to another entry"})
			return
		}
		card, ok = session.Card(req.CardID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found in lookup session"})
			return
		}
	case req.Card != nil:
		card = *req.Card
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "either session_id and card_id or card is required"})
		return
	}

	record, err := h.collection.SelectCard(c.Request.Context(), req.EntryID, card)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry_id": req.EntryID,
		"record":   record,
		"stats":    h.collection.Stats(h.catalog.Len()),
	})
}

// ExportCollection downloads the collection as a dated save file
func (h *CollectionHandler) ExportCollection(c *gin.Context) {
	sf := h.collection.Export()
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := ExportFileName(time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", data)
}

// ImportCollection replaces the collection with an uploaded save file
func (h *CollectionHandler) ImportCollection(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read upload: %v", err)})
		return
	}

	n, err := h.collection.Import(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": n,
		"stats":    h.collection.Stats(h.catalog.Len()),
	})
}

// ExportFileName is the download name for a save made at t
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("pokeCapture_save_%s.json", t.Format("2006-01-02"))
}
