package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/receipt-vision/internal/receipts"
)

func (h *handlers) listReceipts(c *gin.Context) {
	recs, err := h.deps.Receipts.List(c.Request.Context(), c.Query("userId"))
	if err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": recs})
}

func (h *handlers) getReceipt(c *gin.Context) {
	rec, err := h.deps.Receipts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// replaceRows stores the edited rows verbatim.
func (h *handlers) replaceRows(c *gin.Context) {
	var req receipts.ReplaceRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request. items are required."})
		return
	}
	if err := h.deps.Receipts.ReplaceRows(c.Request.Context(), c.Param("id"), req); err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Data updated successfully!"})
}

func (h *handlers) deleteReceipt(c *gin.Context) {
	if err := h.deps.Receipts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully!"})
}
