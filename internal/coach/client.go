package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const maxDocumentSize = 10 << 20 // 10MB

// ErrNotJSON is returned when the service answers with a body that is not JSON.
var ErrNotJSON = errors.New("response body is not JSON")

// Client talks to the chess-coach analysis service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting baseURL. A timeout of zero means no timeout.
// Cookies set by the service are kept for the lifetime of the Client.
func New(baseURL string, timeout time.Duration) *Client {
	hc := &http.Client{Timeout: timeout}
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		hc.Jar = jar
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// BaseURL returns the service URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// Analyze starts an analysis run for req.Date. The date is sent as given,
// including when empty. The response status is not checked: a body without
// run_id produces an empty RunHandle.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (RunHandle, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/analyze", url.Values{"date": {req.Date}})
	if err != nil {
		return RunHandle{}, err
	}
	defer resp.Body.Close()

	var h RunHandle
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&h); err != nil {
		return RunHandle{}, fmt.Errorf("decoding analyze response (status %d): %w", resp.StatusCode, err)
	}
	return h, nil
}

// Analysis fetches the analysis document for runID. Error statuses are not
// treated specially; their bodies come back exactly like successful ones.
func (c *Client) Analysis(ctx context.Context, runID string) (Document, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/analysis/"+url.PathEscape(runID), nil)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return Document{}, fmt.Errorf("reading analysis response: %w", err)
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return Document{}, fmt.Errorf("analysis %q (status %d): %w", runID, resp.StatusCode, ErrNotJSON)
	}
	return Document{Status: resp.StatusCode, Body: json.RawMessage(body)}, nil
}

// Schedule registers a recurring analysis. The response body is discarded;
// the status code is returned for logging.
func (c *Client) Schedule(ctx context.Context, draft ScheduleDraft) (int, error) {
	q := url.Values{
		"date":      {draft.Date},
		"frequency": {draft.Frequency.String()},
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/schedule", q)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))
	return resp.StatusCode, nil
}

// Dashboard returns the scheduled analyses registered for username.
func (c *Client) Dashboard(ctx context.Context, username string) (Dashboard, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/dashboard/"+url.PathEscape(username), nil)
	if err != nil {
		return Dashboard{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Dashboard{}, fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var d Dashboard
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Dashboard{}, fmt.Errorf("decoding dashboard: %w", err)
	}
	return d, nil
}

// Ping reports whether the service answers HTTP at all. Any status counts.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
