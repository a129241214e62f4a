package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

// UploadCreated is the body of a message on the uploads queue.
type UploadCreated struct {
	UploadID string `json:"uploadId"`
	URL      string `json:"url"`
	UserID   string `json:"userId"`
}

func newUploadCreated(up entity.Upload) UploadCreated {
	return UploadCreated{UploadID: up.ID, URL: up.URL, UserID: up.UserID}
}

// DecodeUploadCreated parses and checks a message body.
func DecodeUploadCreated(body []byte) (UploadCreated, error) {
	var ev UploadCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		return UploadCreated{}, fmt.Errorf("decode upload event: %w", err)
	}
	if strings.TrimSpace(ev.URL) == "" || strings.TrimSpace(ev.UserID) == "" {
		return UploadCreated{}, fmt.Errorf("upload event %q is missing url or userId", ev.UploadID)
	}
	return ev, nil
}

// Upload converts the event into the entity the pipeline processes.
func (e UploadCreated) Upload() entity.Upload {
	return entity.Upload{ID: e.UploadID, UserID: e.UserID, URL: e.URL}
}
