package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/llm"
)

var _ llm.Extractor = (*Client)(nil)

// ExtractReceipt implements llm.Extractor with a single vision chat/completions call.
func (c *Client) ExtractReceipt(ctx context.Context, in llm.ImageInput) (*llm.Extraction, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.NewString()
		ctx = common.WithRequestID(ctx, rid)
	}
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"inline_image", strings.HasPrefix(in.URL, "data:"),
	)

	raw, err := c.postWithRetry(ctx, rid, c.buildRequest(in.URL))
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return &llm.Extraction{Raw: raw}, common.NewAppError("UPSTREAM_BAD_RESPONSE", "extraction service returned an unreadable response",
			fmt.Errorf("%w: decode openai response: %v", common.ErrUpstreamUnavailable, err))
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid, "raw", string(raw))
		return &llm.Extraction{Raw: raw}, common.NewAppError("UPSTREAM_BAD_RESPONSE", "extraction service returned no choices",
			fmt.Errorf("%w: no choices in openai response", common.ErrUpstreamUnavailable))
	}

	out := &llm.Extraction{Raw: raw}
	doc, content, err := llm.ParseReceipt([]byte(cc.Choices[0].Message.Content), c.logger)
	out.Content = content
	if err != nil {
		c.logger.Warn("llm.extract.invalid_output",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return out, err
	}
	out.Document = doc

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"items", len(doc.Items),
		"taxes", len(doc.Taxes),
		"total", doc.Total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *Client) buildRequest(imageURL string) map[string]any {
	return map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{
				"role": "system",
				"content": []map[string]any{
					{"type": "text", "text": llm.SystemPrompt},
				},
			},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "image_url", "image_url": map[string]any{"url": imageURL}},
				},
			},
		},
		"temperature":       c.cfg.Temperature,
		"max_tokens":        c.cfg.MaxTokens,
		"top_p":             1,
		"frequency_penalty": 0,
		"presence_penalty":  0,
		"response_format":   map[string]any{"type": "json_object"},
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization":       "Bearer " + c.cfg.APIKey,
		"OpenAI-Organization": c.cfg.OrganizationID,
		"OpenAI-Project":      c.cfg.ProjectID,
	}
}

// postWithRetry retries transport errors, 429 and 5xx with exponential backoff.
// Timeouts and other statuses are returned immediately.
func (c *Client) postWithRetry(ctx context.Context, rid string, body map[string]any) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	backoff := c.cfg.RetryBackoff

	for attempt := 0; ; attempt++ {
		raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, c.headers(), c.logger)
		if err == nil {
			return raw, nil
		}

		classified, retryable := classify(ctx, status, raw, err)
		if !retryable || attempt >= c.cfg.MaxRetries {
			return nil, classified
		}

		c.logger.Warn("llm.extract.retry",
			"req_id", rid, "attempt", attempt+1, "status", status, "backoff_ms", backoff.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return nil, classified
		case <-c.sleep(backoff):
		}
		backoff *= 2
	}
}

func classify(ctx context.Context, status int, raw []byte, err error) (error, bool) {
	if status == 0 {
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return common.NewAppError("UPSTREAM_TIMEOUT", "extraction service timed out",
				fmt.Errorf("%w: %v", common.ErrUpstreamTimeout, err)), false
		}
		if errors.Is(err, context.Canceled) {
			return err, false
		}
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "extraction service unreachable",
			fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)), true
	}

	wrapped := common.NewAppError("UPSTREAM_UNAVAILABLE", fmt.Sprintf("extraction service returned status %d", status),
		fmt.Errorf("%w: openai status %d: %s", common.ErrUpstreamUnavailable, status, truncate(raw, 512)))
	return wrapped, status == http.StatusTooManyRequests || status >= 500
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
