// Package hydrate fetches the REST baseline the push stream is reconciled
// against. After every (re)connect the watcher pulls recent job history from
// the pipeline API so the table starts from authoritative state instead of
// an empty screen.
package hydrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonesrussell/blockwatch/internal/logger"
	"github.com/jonesrussell/blockwatch/internal/models"
)

const (
	// DefaultTimeout bounds one hydration request.
	DefaultTimeout = 10 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second

	apiKeyHeader = "X-API-Key"
)

// Client talks to the pipeline's REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates a hydration client. The API key is optional; deployments
// behind a trusted network run without one.
func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		},
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		logger:  log,
	}, nil
}

type jobsResponse struct {
	Jobs []*models.Job `json:"jobs"`
}

type markReadResponse struct {
	Updated int `json:"updated"`
}

type queueStatsResponse struct {
	QueueInfo models.QueueInfo `json:"queue_info"`
}

// RecentJobs fetches the most recent jobs for one owner, newest first.
func (c *Client) RecentJobs(ctx context.Context, ownerID string, limit int) ([]*models.Job, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("user_id", ownerID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp jobsResponse
	if err := c.get(ctx, "/api/v1/jobs/recent", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch recent jobs: %w", err)
	}
	return resp.Jobs, nil
}

// AllRecentJobs fetches recent jobs across all owners.
func (c *Client) AllRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	return c.RecentJobs(ctx, "", limit)
}

// JobByID fetches one job record.
func (c *Client) JobByID(ctx context.Context, jobID string) (*models.Job, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}

	var job models.Job
	err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(jobID), nil, &job)
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", jobID, err)
	}
	return &job, nil
}

// QueueStats fetches the current queue statistics.
func (c *Client) QueueStats(ctx context.Context) (*models.QueueInfo, error) {
	var resp queueStatsResponse
	if err := c.get(ctx, "/api/v1/queue/stats", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch queue stats: %w", err)
	}
	return &resp.QueueInfo, nil
}

// MarkFailuresRead acknowledges all failed jobs for an owner server-side and
// returns how many records were flagged.
func (c *Client) MarkFailuresRead(ctx context.Context, ownerID string) (int, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("user_id", ownerID)
	}

	reqURL := c.baseURL + "/api/v1/jobs/failures/read"
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create mark-read request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mark failures read: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, c.statusError(resp)
	}

	var body markReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode mark-read response: %w", err)
	}
	return body.Updated, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("hydration request",
		logger.String("path", path),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

func (c *Client) statusError(resp *http.Response) error {
	// Include a bounded slice of the body for diagnostics.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
}
