package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"figurineForge/models"
)

var (
	// ErrQuotaExceeded is a vendor-reported account limit; never retried.
	ErrQuotaExceeded = errors.New("vendor quota exceeded")
	// ErrTransient marks network failures and vendor 5xx responses; the
	// poller retries these against its attempt budget.
	ErrTransient = errors.New("transient vendor error")
	// ErrRejected is a non-retryable vendor rejection (bad request).
	ErrRejected = errors.New("vendor rejected job")
)

// Client talks to the vendor conversion API: submit a job, fetch its status.
// It holds no state beyond the connection settings.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type submitRequest struct {
	Kind      models.TaskKind         `json:"kind"`
	SourceRef string                  `json:"source_ref"`
	Config    models.GenerationConfig `json:"config"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// JobStatus is the raw vendor view of a job. Status is the vendor's own
// string and must go through MapStatus before any internal logic sees it.
type JobStatus struct {
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ModelURL     string `json:"model_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func (c *Client) Submit(ctx context.Context, kind models.TaskKind, sourceRef string, cfg models.GenerationConfig) (string, error) {
	body, err := json.Marshal(submitRequest{Kind: kind, SourceRef: sourceRef, Config: cfg})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: submit: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired:
		return "", fmt.Errorf("%w: status %d", ErrQuotaExceeded, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: submit returned %d", ErrTransient, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, readBodyPrefix(resp.Body))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("%w: submit response missing task_id", ErrRejected)
	}

	c.logger.Info("Job submitted",
		zap.String("task_id", out.TaskID),
		zap.String("kind", string(kind)),
	)

	return out.TaskID, nil
}

func (c *Client) Status(ctx context.Context, taskID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status returned %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, readBodyPrefix(resp.Body))
	}

	var out JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	return &out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readBodyPrefix(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return string(bytes.TrimSpace(b))
}
