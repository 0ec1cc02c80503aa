package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

// StatusError is a non-2xx QuickBooks response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if msg := faultMessage([]byte(e.Body)); msg != "" {
		return fmt.Sprintf("quickbooks status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("quickbooks status %d", e.StatusCode)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type fault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

func faultMessage(raw []byte) string {
	var f fault
	if err := json.Unmarshal(raw, &f); err != nil || len(f.Fault.Error) == 0 {
		return ""
	}
	var parts []string
	for _, e := range f.Fault.Error {
		msg := e.Message
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

// send performs one logical request with bounded retries on transport
// errors, 429 and 5xx. The body is re-sent on every attempt.
func (c *Client) send(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryBackoff * time.Duration(attempt)
			c.logger.Warn("quickbooks.http.retry", "req_id", reqID, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		raw, err := c.do(ctx, reqID, method, url, body)
		if err == nil {
			c.logger.Info("quickbooks.http.ok", "req_id", reqID, "method", method, "attempts", attempt+1, "elapsed_ms", time.Since(start).Milliseconds())
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return raw, err
		}
		lastErr = err
	}

	c.logger.Error("quickbooks.http.exhausted", "req_id", reqID, "url", url, "attempts", c.cfg.MaxRetries+1, "error", lastErr)
	return nil, fmt.Errorf("quickbooks request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, reqID, method, url string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		c.logger.Error("quickbooks.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Request-Id", reqID)

	c.logger.Debug("quickbooks.http.request", "req_id", reqID, "method", method, "url", url, "content_length", len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("quickbooks.http.send_error", "req_id", reqID, "error", err)
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Warn("quickbooks.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("quickbooks.http.response", "req_id", reqID, "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode/100 != 2 {
		return raw, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
