package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/receipt-vision/internal/export"
)

// exportReceipt sends the receipt rows as a CSV or XLSX attachment.
func (h *handlers) exportReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "format must be csv or xlsx"})
		return
	}

	rec, err := h.deps.Receipts.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err, "")
		return
	}
	file, err := h.deps.Exporter.Receipt(ctx, rec, format)
	if err != nil {
		h.logger.Error("export.failed", "receipt_id", rec.ID, "format", format, "error", err)
		writeError(c, err, "export failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
