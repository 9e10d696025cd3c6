// Package airflow is the fetch adapter for the Airflow REST API. It owns
// pagination, tag normalization, and the per-DAG fan-out for run fetches;
// aggregation logic lives in the service package.
package airflow

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

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/airflow-health/internal/httpx"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/retry"
)

// ErrUpstreamUnavailable marks any failure to obtain a valid response from
// the Airflow API: network error, timeout, or non-2xx status. It is the
// only error class that makes a request eligible for the fallback cache.
var ErrUpstreamUnavailable = errors.New("airflow api unavailable")

const (
	pageSize = 100

	// defaultRunLimit is the per-DAG run fetch limit within a time range.
	defaultRunLimit = 100

	// maxConcurrentRunFetches bounds the fan-out of ListRunsForDags.
	maxConcurrentRunFetches = 8
)

// Config holds the Airflow API connection settings.
type Config struct {
	BaseURL  string        `env:"AIRFLOW_BASE_URL"  yaml:"base_url"`
	Username string        `env:"AIRFLOW_USERNAME"  yaml:"username"`
	Password string        `env:"AIRFLOW_PASSWORD"  yaml:"password"`
	APIToken string        `env:"AIRFLOW_API_TOKEN" yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Client is the Airflow REST API client.
type Client struct {
	baseURL    string
	username   string
	password   string
	apiToken   string
	httpClient *http.Client
	log        logger.Logger
}

// NewClient creates a new Airflow API client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("airflow base_url is required")
	}
	if cfg.APIToken == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, errors.New("airflow api_token or username/password is required")
	}

	return &Client{
		baseURL:    trimTrailingSlash(cfg.BaseURL),
		username:   cfg.Username,
		password:   cfg.Password,
		apiToken:   cfg.APIToken,
		httpClient: httpx.NewClient(&httpx.ClientConfig{Timeout: cfg.Timeout}),
		log:        log,
	}, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// BaseURL returns the configured Airflow webserver URL, used by callers
// to build deep links into the Airflow UI.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TestConnection checks reachability of the Airflow API health endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "health", nil)
	return err
}

// ListDags fetches all DAGs, following Airflow's offset pagination until
// total_entries is exhausted. Tags are normalized before returning.
func (c *Client) ListDags(ctx context.Context) ([]models.Dag, error) {
	var all []models.Dag

	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(offset))

		body, err := c.get(ctx, "dags", params)
		if err != nil {
			return nil, err
		}

		var page dagListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("%w: decode dag list: %v", ErrUpstreamUnavailable, err)
		}

		for _, d := range page.Dags {
			all = append(all, d.toModel())
		}

		// total_entries can drift while paginating; the empty-page check
		// is what guarantees termination regardless of what it reports.
		if offset+pageSize >= page.TotalEntries || len(page.Dags) == 0 {
			break
		}
	}

	c.log.Debug("Fetched DAGs from Airflow", logger.Int("count", len(all)))
	return all, nil
}

// ListRuns fetches runs for one DAG within the time range, most recent first.
func (c *Client) ListRuns(ctx context.Context, dagID string, timeRange models.TimeRange, limit int) ([]models.DagRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("start_date_gte", time.Now().UTC().Add(-timeRange.Duration()).Format(time.RFC3339))
	params.Set("order_by", "-execution_date")

	body, err := c.get(ctx, "dags/"+url.PathEscape(dagID)+"/dagRuns", params)
	if err != nil {
		return nil, err
	}

	var page runListResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode dag runs: %v", ErrUpstreamUnavailable, err)
	}

	runs := make([]models.DagRun, 0, len(page.DagRuns))
	for _, r := range page.DagRuns {
		runs = append(runs, r.toModel(dagID, c.baseURL))
	}
	return runs, nil
}

// ListRunsForDags fetches runs for every DAG in dagIDs concurrently. A
// failure for one DAG contributes an empty run list for that DAG; it never
// fails the batch. Every dagID is present as a key in the result.
func (c *Client) ListRunsForDags(ctx context.Context, dagIDs []string, timeRange models.TimeRange) map[string][]models.DagRun {
	results := make(map[string][]models.DagRun, len(dagIDs))
	for _, id := range dagIDs {
		results[id] = nil
	}

	type fetched struct {
		dagID string
		runs  []models.DagRun
	}
	resCh := make(chan fetched, len(dagIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRunFetches)

	for _, dagID := range dagIDs {
		g.Go(func() error {
			runs, err := c.ListRuns(gctx, dagID, timeRange, defaultRunLimit)
			if err != nil {
				c.log.Warn("Failed to fetch runs for DAG",
					logger.String("dag_id", dagID),
					logger.Error(err),
				)
				return nil
			}
			resCh <- fetched{dagID: dagID, runs: runs}
			return nil
		})
	}

	_ = g.Wait()
	close(resCh)

	for f := range resCh {
		results[f.dagID] = f.runs
	}
	return results
}

// get issues an authenticated GET against the Airflow v1 API, retrying
// transient transport failures. All failure modes collapse into
// ErrUpstreamUnavailable.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "/api/v1/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var body []byte
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		if c.apiToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiToken)
		} else {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused, then fail without retry:
			// a 5xx from Airflow means fall back to stale cache, not hammer it.
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: %s returned status %d", ErrUpstreamUnavailable, endpoint, resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return body, nil
}
