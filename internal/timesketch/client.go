// Package timesketch is the only point of coupling to the Timesketch REST
// API. It owns the process-wide authenticated session and normalizes every
// transport or backend failure into the bridge's error taxonomy.
package timesketch

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
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/dfirlabs/timesketch-mcp/internal/errors"
	"github.com/dfirlabs/timesketch-mcp/internal/metrics"
)

const (
	loginPath      = "/login/"
	csrfCookieName = "csrf_token"
	timeChipLayout = "2006-01-02T15:04:05"

	defaultTimeout = 60 * time.Second
)

var (
	errSessionExpired = errors.New("session expired")
	errMissingSource  = errors.New("event object has no _source")
)

// Config carries the backend coordinates, read once at startup by the
// bootstrap and passed in as a value.
type Config struct {
	HostURI  string
	Username string
	Password string
	Timeout  time.Duration
}

// Session is the live authenticated handle. At most one exists per
// process; all in-flight calls share it read-only. The client alone
// replaces it, under lock, on expiry.
type Session struct {
	CSRFToken   string
	Established time.Time
}

// Client issues sketch, search, and aggregation requests against one
// Timesketch server.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	// mu guards session and authGen. authGen increments on every login so
	// a call that saw generation N can tell whether another call already
	// re-authenticated while it was waiting for the lock.
	mu      sync.Mutex
	session *Session
	authGen uint64
}

// NewClient creates a client for the given backend. No network traffic
// happens until Authenticate or the first operation.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.HostURI, "/")
	if base == "" {
		return nil, apperrors.New(apperrors.KindBackend, "backend host URI is empty", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, apperrors.New(apperrors.KindBackend, "backend host URI is invalid", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, apperrors.New(apperrors.KindBackend, "failed to create cookie jar", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			// Redirects stay visible: a 302 to the login page is the
			// backend's other way of saying the session expired, and
			// following it would hand JSON decoding an HTML login form.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Authenticate establishes the session if none exists. Idempotent: while a
// session is live, repeated calls return without a network round trip.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

// Search runs an explore query against a sketch.
func (c *Client) Search(ctx context.Context, q Query) (*SearchResponse, error) {
	path := fmt.Sprintf("/api/v1/sketches/%d/explore/", q.SketchID)
	var resp SearchResponse
	if err := c.call(ctx, "explore", http.MethodPost, path, buildExploreRequest(q), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Aggregate runs a Timesketch aggregator against a sketch.
func (c *Client) Aggregate(ctx context.Context, q Query) (*AggregationResponse, error) {
	if q.Aggregation == nil {
		return nil, apperrors.New(apperrors.KindBackend, "query carries no aggregation spec", nil)
	}
	path := fmt.Sprintf("/api/v1/sketches/%d/aggregation/explore/", q.SketchID)
	var resp AggregationResponse
	if err := c.call(ctx, "aggregation", http.MethodPost, path, buildAggregationRequest(q), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSketches returns one page of the sketches visible to the
// authenticated user.
func (c *Client) ListSketches(ctx context.Context, page int) (*SketchList, error) {
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/api/v1/sketches/?page=%d", page)
	var resp SketchList
	if err := c.call(ctx, "list_sketches", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSketch returns one sketch's metadata including its timelines.
func (c *Client) GetSketch(ctx context.Context, id int) (*Sketch, error) {
	path := fmt.Sprintf("/api/v1/sketches/%d/", id)
	var resp struct {
		Objects []Sketch `json:"objects"`
	}
	if err := c.call(ctx, "get_sketch", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Objects) == 0 {
		return nil, apperrors.New(apperrors.KindBackend, fmt.Sprintf("sketch %d not found", id), nil)
	}
	return &resp.Objects[0], nil
}

// call runs one API request with the expiry policy from the design: on an
// authentication-expired signal, re-authenticate once and retry the same
// request exactly once.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	gen, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, op, method, path, body, out)
	if !errors.Is(err, errSessionExpired) {
		return err
	}
	log.Warn().Str("operation", op).Msg("session expired, re-authenticating")
	if rerr := c.reauthenticate(ctx, gen); rerr != nil {
		return apperrors.New(apperrors.KindAuth, "session expired and re-authentication failed", rerr)
	}
	err = c.do(ctx, op, method, path, body, out)
	if errors.Is(err, errSessionExpired) {
		return apperrors.New(apperrors.KindAuth, "session rejected immediately after re-authentication", nil)
	}
	return err
}

// ensureSession returns the current auth generation, logging in first if
// no session exists.
func (c *Client) ensureSession(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.authGen, nil
	}
	if err := c.login(ctx); err != nil {
		return 0, err
	}
	return c.authGen, nil
}

// reauthenticate replaces the session, single-flight: if another call
// already logged in since generation seen, its session is reused and no
// extra round trip happens.
func (c *Client) reauthenticate(ctx context.Context, seen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authGen != seen {
		return nil
	}
	c.session = nil
	metrics.Reauthentications.Inc()
	return c.login(ctx)
}

// login performs the CSRF handshake and credential POST. Caller holds mu.
func (c *Client) login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+loginPath, nil)
	if err != nil {
		return apperrors.New(apperrors.KindAuth, "failed to create login request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.New(apperrors.KindAuth, "login page unreachable", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	csrf := c.csrfToken(resp)
	if csrf == "" {
		return apperrors.New(apperrors.KindAuth, "backend returned no CSRF token", nil)
	}

	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"csrf_token": {csrf},
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.New(apperrors.KindAuth, "failed to create login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("Referer", c.baseURL+loginPath)

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return apperrors.New(apperrors.KindAuth, "login request failed", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apperrors.New(apperrors.KindAuth,
			fmt.Sprintf("credentials rejected (status %d)", resp.StatusCode), nil)
	}

	c.session = &Session{CSRFToken: csrf, Established: time.Now()}
	c.authGen++
	log.Debug().Uint64("generation", c.authGen).Msg("authenticated against timesketch")
	return nil
}

// csrfToken extracts the CSRF cookie from a login page response, falling
// back to the jar for servers that set it on an earlier redirect hop.
func (c *Client) csrfToken(resp *http.Response) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

// do executes one API round trip. It returns errSessionExpired on the
// backend's auth-expired signals, a 401 or a redirect to the login page,
// and maps every other failure to the taxonomy; no raw transport error
// escapes.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.New(apperrors.KindBackend, "failed to marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.New(apperrors.KindBackend, "failed to create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Referer", c.baseURL)
	c.mu.Lock()
	if c.session != nil {
		req.Header.Set("X-CSRFToken", c.session.CSRFToken)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		if ctx.Err() != nil {
			// The caller cancelled; the cause stays reachable via errors.Is.
			return apperrors.New(apperrors.KindBackend, fmt.Sprintf("%s abandoned: %v", op, ctx.Err()), ctx.Err())
		}
		return apperrors.NewRetryable(fmt.Sprintf("%s request failed", op), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.BackendRequests.WithLabelValues(op, "expired").Inc()
		return errSessionExpired
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if loc, lerr := resp.Location(); lerr == nil && strings.HasPrefix(loc.Path, "/login") {
			metrics.BackendRequests.WithLabelValues(op, "expired").Inc()
			return errSessionExpired
		}
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		return apperrors.New(apperrors.KindBackend,
			fmt.Sprintf("%s redirected unexpectedly (status %d)", op, resp.StatusCode), nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.NewRetryable(
			fmt.Sprintf("%s returned status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	case resp.StatusCode >= 400:
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.New(apperrors.KindBackend,
			fmt.Sprintf("%s rejected with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.BackendRequests.WithLabelValues(op, "error").Inc()
			return apperrors.New(apperrors.KindBackend, fmt.Sprintf("%s returned a malformed response", op), err)
		}
	}
	metrics.BackendRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// buildExploreRequest renders a Query into the explore wire shape. Time
// range, term filters, and the star label all travel as filter chips.
func buildExploreRequest(q Query) exploreRequest {
	chips := make([]Chip, 0, len(q.Filters)+2)
	if !q.StartTime.IsZero() || !q.EndTime.IsZero() {
		chips = append(chips, Chip{
			Type:     "datetime_range",
			Value:    q.StartTime.UTC().Format(timeChipLayout) + "," + q.EndTime.UTC().Format(timeChipLayout),
			Operator: "must",
			Active:   true,
		})
	}
	for _, f := range q.Filters {
		chips = append(chips, Chip{
			Field:    f.Field,
			Type:     "term",
			Value:    f.Value,
			Operator: "must",
			Active:   true,
		})
	}
	if q.Starred {
		chips = append(chips, Chip{
			Type:     "label",
			Value:    "__ts_star",
			Operator: "must",
			Active:   true,
		})
	}
	return exploreRequest{
		Query:        q.QueryString,
		ReturnFields: strings.Join(q.ReturnFields, ","),
		Filter: exploreFilter{
			From:    q.Offset,
			Size:    q.PageSize,
			Order:   q.Sort,
			Indices: []string{"_all"},
			Chips:   chips,
		},
	}
}

func buildAggregationRequest(q Query) aggregationRequest {
	params := map[string]string{
		"field": q.Aggregation.Field,
		"limit": fmt.Sprintf("%d", q.Aggregation.Limit),
	}
	if !q.StartTime.IsZero() || !q.EndTime.IsZero() {
		params["start_time"] = q.StartTime.UTC().Format(timeChipLayout)
		params["end_time"] = q.EndTime.UTC().Format(timeChipLayout)
	}
	return aggregationRequest{
		AggregatorName:       q.Aggregation.Name,
		AggregatorParameters: params,
	}
}
