// Package gateway holds the HTTP clients for the identity registry, the
// mobile-money provider and the filing executor.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

const maxErrorBody = 4 << 10

// statusError is returned for non-2xx responses.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Message)
}

type client struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	log     logger.Logger
}

func newClient(name, baseURL, apiKey string, timeout time.Duration, log logger.Logger) *client {
	return &client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log.With(logger.Component(name)),
	}
}

// do sends in as JSON and decodes a 2xx body into out. Transport failures
// come back as ErrUpstreamUnavailable; non-2xx responses as *statusError.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperrors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("upstream call failed", logger.Method(method), logger.Path(path), logger.Error(err))
		return apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, err.Error())
	}
	defer resp.Body.Close()

	c.log.Debug("upstream call",
		logger.Method(method),
		logger.Path(path),
		logger.Status(resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Code: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, "malformed response from "+c.name)
	}
	return nil
}

// readMessage pulls "message" or "error" out of a JSON error body, falling
// back to the raw text.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
