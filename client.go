package firestoremetrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
)

const defaultEndpoint = "https://monitoring.googleapis.com/v3"

// Firestore usage metric names, relative to firestore.googleapis.com/.
const (
	MetricReadCount           = "read_count"
	MetricWriteCount          = "write_count"
	MetricDeleteCount         = "delete_count"
	MetricSnapshotListeners   = "network/snapshot_listeners"
	MetricActiveConnections   = "network/active_connections"
	MetricTTLDeletionCount    = "document/ttl_deletion_count"
	MetricRuleEvaluationCount = "rules/evaluation_count"
	MetricAPIRequestCount     = "api/request_count"
)

// HTTPClient is the subset of *http.Client the query facade needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// QueryResult wraps the normalized records with the HTTP status of the
// underlying timeSeries.list call.
type QueryResult struct {
	Status     int                  `json:"status"`
	StatusText string               `json:"statusText"`
	Data       []TimeIntervalMetric `json:"data"`
}

// Client queries Firestore usage metrics from the Cloud Monitoring v3 REST
// API. It holds no state besides its configuration and the token provider's
// memoized token; each query is one request, with no retries and no
// library-imposed timeout.
type Client struct {
	projectID  string
	tokens     TokenProvider
	httpClient HTTPClient
	endpoint   string
	dedup      DedupMode

	credsJSON []byte
	credsFile string
}

type Option func(*Client)

// WithProjectID overrides the project ID derived from the credentials.
func WithProjectID(id string) Option {
	return func(c *Client) { c.projectID = id }
}

// WithCredentialsFile points the client at a service account key file.
func WithCredentialsFile(path string) Option {
	return func(c *Client) { c.credsFile = path }
}

// WithCredentialsJSON supplies inline service account key material.
func WithCredentialsJSON(data []byte) Option {
	return func(c *Client) { c.credsJSON = data }
}

// WithTokenProvider bypasses credential loading entirely. Use
// StaticTokenProvider for a pre-acquired bearer token.
func WithTokenProvider(tp TokenProvider) Option {
	return func(c *Client) { c.tokens = tp }
}

func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint replaces the Monitoring API base URL. Mainly for tests.
func WithEndpoint(base string) Option {
	return func(c *Client) { c.endpoint = base }
}

func WithDedupMode(mode DedupMode) Option {
	return func(c *Client) { c.dedup = mode }
}

func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: http.DefaultClient,
		endpoint:   defaultEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		var (
			provider *googleTokenProvider
			err      error
		)
		switch {
		case c.credsJSON != nil:
			provider, err = newGoogleTokenProvider(ctx, c.credsJSON)
		case c.credsFile != "":
			provider, err = newGoogleTokenProviderFromFile(ctx, c.credsFile)
		default:
			return nil, errors.New("no credentials: set a key file, inline key, or token provider")
		}
		if err != nil {
			return nil, err
		}
		if c.projectID == "" {
			c.projectID = provider.projectID
		}
		c.tokens = provider
	}
	if c.projectID == "" {
		return nil, errors.New("project ID not set and not derivable from credentials")
	}
	return c, nil
}

// RefreshToken drops the provider's memoized token, if it keeps one, so the
// next query acquires a fresh one.
func (c *Client) RefreshToken() {
	if r, ok := c.tokens.(interface{ Refresh() }); ok {
		r.Refresh()
	}
}

// ReadCount returns document read counts in [start, end).
func (c *Client) ReadCount(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricReadCount, start, end)
}

// WriteCount returns document write counts in [start, end).
func (c *Client) WriteCount(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricWriteCount, start, end)
}

// DeleteCount returns document delete counts in [start, end).
func (c *Client) DeleteCount(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricDeleteCount, start, end)
}

// SnapshotListeners returns snapshot listener counts in [start, end).
func (c *Client) SnapshotListeners(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricSnapshotListeners, start, end)
}

// ActiveConnections returns active connection counts in [start, end).
func (c *Client) ActiveConnections(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricActiveConnections, start, end)
}

// TTLDeletionCount returns TTL deletion counts in [start, end).
func (c *Client) TTLDeletionCount(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricTTLDeletionCount, start, end)
}

// RuleEvaluationCount returns security rule evaluation counts in [start, end).
func (c *Client) RuleEvaluationCount(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricRuleEvaluationCount, start, end)
}

// APIRequestCount returns Firestore API request counts in [start, end).
func (c *Client) APIRequestCount(ctx context.Context, start, end time.Time) (*QueryResult, error) {
	return c.Query(ctx, MetricAPIRequestCount, start, end)
}

// Query lists the given firestore.googleapis.com metric over [start, end)
// and normalizes the response. A non-200 status comes back as a
// *googleapi.Error carrying the response body; a 403 in particular means
// billing is not enabled on the target project.
func (c *Client) Query(ctx context.Context, metric string, start, end time.Time) (*QueryResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("filter", fmt.Sprintf("metric.type = \"firestore.googleapis.com/%s\"", metric))
	params.Set("interval.startTime", start.UTC().Format(time.RFC3339))
	params.Set("interval.endTime", end.UTC().Format(time.RFC3339))

	reqURL := fmt.Sprintf("%s/projects/%s/timeSeries?%s", c.endpoint, c.projectID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build timeSeries.list request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "list time series for %s", metric)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read time series response")
	}
	data, err := Normalize(body, c.dedup)
	if err != nil {
		return nil, err
	}
	return &QueryResult{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Data:       data,
	}, nil
}
