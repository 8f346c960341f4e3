// Package github implements the workflow-run listing and deletion calls
// against the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/time/rate"

	"github.com/vietddude/runpurge/internal/core/domain"
	"github.com/vietddude/runpurge/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	pageSize       = 100
	userAgent      = "runpurge"
)

// Config holds API client settings.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerSecond caps all API traffic. 0 means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Client talks to the Actions API of one repository.
type Client struct {
	baseURL    string
	token      string
	owner      string
	repo       string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger

	Monitor *ThrottleMonitor
}

// NewClient creates a new GitHub API client.
func NewClient(cfg Config, token, owner, repo string) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		owner:   owner,
		repo:    repo,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		log:     slog.Default().With("repo", owner+"/"+repo),
		Monitor: NewThrottleMonitor(),
	}
}

type workflowRunsPage struct {
	TotalCount   int `json:"total_count"`
	WorkflowRuns []struct {
		ID         int64     `json:"id"`
		WorkflowID int64     `json:"workflow_id"`
		Name       string    `json:"name"`
		CreatedAt  time.Time `json:"created_at"`
	} `json:"workflow_runs"`
}

// ListRecords lists completed workflow runs, following pagination lazily.
// Runs not matching filter.GroupNames are skipped.
func (c *Client) ListRecords(ctx context.Context, filter domain.ListFilter) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		next, err := c.firstPageURL(filter)
		if err != nil {
			yield(domain.Record{}, err)
			return
		}
		for next != "" {
			page, link, err := c.fetchPage(ctx, next)
			if err != nil {
				yield(domain.Record{}, err)
				return
			}
			for _, run := range page.WorkflowRuns {
				if !filter.Matches(run.Name) {
					continue
				}
				r := domain.Record{
					ID:        run.ID,
					GroupID:   run.WorkflowID,
					GroupName: run.Name,
					CreatedAt: run.CreatedAt,
				}
				if !yield(r, nil) {
					return
				}
			}
			next = nextLink(link)
		}
	}
}

// listRunsOptions is the query of the list workflow runs endpoint.
type listRunsOptions struct {
	Status  string `url:"status,omitempty"`
	PerPage int    `url:"per_page,omitempty"`
	// Created uses GitHub's search syntax, e.g. "<2024-01-31".
	Created string `url:"created,omitempty"`
}

func (c *Client) firstPageURL(filter domain.ListFilter) (string, error) {
	opts := listRunsOptions{Status: "completed", PerPage: pageSize}
	if !filter.CreatedBefore.IsZero() {
		opts.Created = "<" + filter.CreatedBefore.UTC().Format(time.DateOnly)
	}
	q, err := query.Values(opts)
	if err != nil {
		return "", fmt.Errorf("encode list query: %w", err)
	}
	return fmt.Sprintf("%s/repos/%s/%s/actions/runs?%s",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), q.Encode()), nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*workflowRunsPage, string, error) {
	resp, err := c.do(ctx, http.MethodGet, pageURL, "list workflow runs")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var page workflowRunsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("parse workflow runs page: %w", err)
	}
	return &page, resp.Header.Get("Link"), nil
}

// DeleteRecord deletes one workflow run. Failures are *domain.RemoteError.
func (c *Client) DeleteRecord(ctx context.Context, id int64) error {
	u := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), id)
	resp, err := c.do(ctx, http.MethodDelete, u, fmt.Sprintf("delete run #%d", id))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do sends one request and converts any non-2xx response into a
// *domain.RemoteError. The caller closes the body on success.
func (c *Client) do(ctx context.Context, method, u, op string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.RemoteError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APILatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &domain.RemoteError{Op: op, Err: err}
	}

	c.Monitor.Observe(resp.Header)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	return nil, c.remoteError(op, resp)
}

func (c *Client) remoteError(op string, resp *http.Response) *domain.RemoteError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	re := &domain.RemoteError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
		RetryAfter: retryAfter(resp.Header, time.Now()),
	}

	// RateLimited carries header signals only; message-based detection
	// belongs to resilience.Classify.
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		re.RateLimited = true
	case http.StatusForbidden:
		re.RateLimited = quotaExhausted(resp.Header)
	}
	if re.RateLimited || (resp.StatusCode == http.StatusForbidden && c.Monitor.DetectThrottlePattern(re.Message)) {
		c.Monitor.RecordThrottle(resp.StatusCode)
		c.log.Debug("GitHub throttled request", "op", op, "status", resp.StatusCode, "retry_after", re.RetryAfter)
	}
	return re
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

var linkNextRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextLink extracts the rel="next" target of a Link header.
func nextLink(header string) string {
	m := linkNextRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
