package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/pipeline"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

// bodySlack covers the JSON envelope, the data URL header and the user id.
const bodySlack = 64 << 10

type uploadImageRequest struct {
	Image  string `json:"image" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

func (h *handlers) uploadImage(c *gin.Context) {
	ctx := c.Request.Context()

	if h.deps.MaxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.bodyLimit())
	}

	var req uploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(c, upload.TooLarge(h.deps.MaxImageBytes), "")
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request. Image and user ID are required."})
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || strings.TrimSpace(req.Image) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request. Image and user ID are required."})
		return
	}
	if caller := common.UserIDFromContext(ctx); caller != "" && caller != userID {
		writeError(c, common.NewAppError("FORBIDDEN", "cannot upload for another user", common.ErrForbidden), "")
		return
	}

	img, err := upload.DecodeImage(req.Image)
	if err != nil {
		writeError(c, err, "")
		return
	}

	res, err := h.deps.Processor.ProcessInline(ctx, userID, img)
	if err != nil {
		h.logger.Error("upload.failed", "req_id", common.RequestIDFromContext(ctx), "user_id", userID, "error", err)
		writeError(c, err, "An error occurred during the upload: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Upload successful",
		"receiptData": res.Content,
		"receiptId":   res.ReceiptID,
	})
}

// bodyLimit is the base64 length of the largest accepted image plus slack.
func (h *handlers) bodyLimit() int64 {
	return int64((h.deps.MaxImageBytes+2)/3*4) + bodySlack
}

func (h *handlers) submitUpload(c *gin.Context) {
	if h.deps.Intake == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "URL uploads are not enabled"})
		return
	}
	var req pipeline.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request. url and userId are required."})
		return
	}

	up, err := h.deps.Intake.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Upload accepted", "uploadId": up.ID})
}
