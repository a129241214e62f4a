package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/receipt-vision/constants"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
)

var dataURLPrefix = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,`)

// Image is a decoded receipt image.
type Image struct {
	Data        []byte
	ContentType string
}

// DataURL renders the image as a base64 data URL.
func (img Image) DataURL() string {
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// DecodeImage decodes a base64 payload, with or without a data URL header.
func DecodeImage(payload string) (Image, error) {
	payload = strings.TrimSpace(payload)
	declared := ""
	if m := dataURLPrefix.FindStringSubmatch(payload); m != nil {
		declared = constants.NormalizeContentType(m[1])
		payload = payload[len(m[0]):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil || len(data) == 0 {
		return Image{}, common.NewAppError("INVALID_IMAGE", "Invalid request. Image must be base64 encoded.", common.ErrInvalidInput)
	}
	return Image{Data: data, ContentType: detectContentType(data, declared)}, nil
}

// NewImage wraps raw image bytes with a sniffed content type.
func NewImage(data []byte) Image {
	return Image{Data: data, ContentType: detectContentType(data, "")}
}

func detectContentType(data []byte, declared string) string {
	if sniffed := constants.NormalizeContentType(http.DetectContentType(data)); constants.IsAllowedImageType(sniffed) {
		return sniffed
	}
	if constants.IsAllowedImageType(declared) {
		return declared
	}
	return constants.DefaultImageType
}

// Fetcher downloads remote images with a size bound.
type Fetcher struct {
	client   *http.Client
	maxBytes int
	logger   *slog.Logger
}

func NewFetcher(client *http.Client, maxBytes int, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, maxBytes: maxBytes, logger: logger}
}

// Fetch downloads url. Bodies larger than the limit fail with ErrImageTooLarge
// without being read past limit+1 bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, common.NewAppError("INVALID_URL", "image url is invalid", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("upload.fetch_error", "url", url, "error", err)
		return Image{}, fmt.Errorf("%w: fetch image: %v", common.ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Image{}, fmt.Errorf("%w: fetch image: status %d", common.ErrImageFetch, resp.StatusCode)
	}
	if resp.ContentLength > int64(f.maxBytes) {
		return Image{}, TooLarge(f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBytes)+1))
	if err != nil {
		return Image{}, fmt.Errorf("%w: read image: %v", common.ErrImageFetch, err)
	}
	if len(data) > f.maxBytes {
		return Image{}, TooLarge(f.maxBytes)
	}

	f.logger.Debug("upload.fetched", "url", url, "bytes", len(data))
	return Image{Data: data, ContentType: detectContentType(data, constants.NormalizeContentType(resp.Header.Get("Content-Type")))}, nil
}

// TooLarge is the rejection for an image over limit bytes.
func TooLarge(limit int) error {
	return common.NewAppError("IMAGE_TOO_LARGE", fmt.Sprintf("Image size exceeds %s", formatMB(limit)), common.ErrImageTooLarge)
}
