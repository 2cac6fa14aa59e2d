// Package api provides the HTTP client for the remote products API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kimhsiao/inventorylite/internal/errors"
	"github.com/kimhsiao/inventorylite/internal/models"
)

// Client talks to the remote products API. The server holds the
// authoritative state; every successful mutation increments the entity's
// version stamp, and updates carrying a stale version are rejected with
// 409 Conflict.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. timeout bounds every call so a hung remote
// cannot stall a reconciliation pass.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// CreateProduct submits a full product payload. The server assigns the
// ID and initial version.
func (c *Client) CreateProduct(ctx context.Context, p models.CreatePayload) (*models.Product, error) {
	var created models.Product
	if err := c.do(ctx, http.MethodPost, "/products", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct submits the changed fields plus the version the edit was
// based on. A stale version comes back as a conflict error.
func (c *Client) UpdateProduct(ctx context.Context, id string, changed map[string]interface{}, version int64) (*models.Product, error) {
	body := make(map[string]interface{}, len(changed)+1)
	for k, v := range changed {
		body[k] = v
	}
	body["version"] = version

	var updated models.Product
	if err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(id), body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct deletes a product. Deleting an already-deleted ID is
// treated as success: the intent is satisfied either way.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	return err
}

// Ping probes the API health endpoint. Used by the connectivity monitor.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build probe request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return errors.New(errors.ErrNetwork, fmt.Sprintf("health probe returned status %d", resp.StatusCode))
	}
	return nil
}

// do executes one API call and decodes the response into out when
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.ErrValidation, "failed to decode response body", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return nil
}

// errorBody is the API's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// classifyStatus maps an HTTP error status onto the retry taxonomy:
// 409 is a conflict (stale version, needs a human decision), 408/429 and
// 5xx are transient, every other 4xx is a validation failure that an
// identical resend cannot fix.
func classifyStatus(resp *http.Response) error {
	detail := readDetail(resp)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return errors.New(errors.ErrSyncConflict,
			fmt.Sprintf("version conflict: %s", detail))
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrNotFound, detail)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.ErrNetwork,
			fmt.Sprintf("server busy (status %d): %s", resp.StatusCode, detail))
	case resp.StatusCode >= 500:
		return errors.New(errors.ErrNetwork,
			fmt.Sprintf("server error (status %d): %s", resp.StatusCode, detail))
	default:
		return errors.New(errors.ErrValidation,
			fmt.Sprintf("request rejected (status %d): %s", resp.StatusCode, detail))
	}
}

// classifyTransport maps a transport-level failure: deadline expiry is a
// timeout, everything else a generic network error. Both are transient.
func classifyTransport(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrSyncTimeout, "remote call timed out", err)
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.Wrap(errors.ErrSyncTimeout, "remote call timed out", err)
	}
	return errors.Wrap(errors.ErrNetwork, "remote call failed", err)
}

func readDetail(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(data))
}

// IsTransient reports whether a delivery failure is eligible for a
// future retry.
func IsTransient(err error) bool {
	return errors.Is(err, errors.ErrNetwork) || errors.Is(err, errors.ErrSyncTimeout)
}
