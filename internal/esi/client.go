package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eve-arbitrage/internal/market"
)

const (
	DefaultBaseURL   = "https://esi.evetech.net/latest"
	DefaultUserAgent = "eve-arbitrage/1.0"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Regions maps station ID -> region ID for every location that may be fetched.
	Regions map[int64]int32
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client is an ESI HTTP client. It implements market.Source; concurrency and
// rate limits are applied by the caller.
type Client struct {
	http       *http.Client
	baseURL    string
	userAgent  string
	regions    map[int64]int32
	orderCache *OrderCache
	now        func() time.Time
}

// NewClient creates an ESI client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	regions := make(map[int64]int32, len(opts.Regions))
	for k, v := range opts.Regions {
		regions[k] = v
	}
	return &Client{
		http:       hc,
		baseURL:    base,
		userAgent:  ua,
		regions:    regions,
		orderCache: NewOrderCache(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck pings ESI to verify connectivity.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := c.newRequest(ctx, c.baseURL+"/status/?datasource=tranquility")
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// newRequest creates a standard ESI GET request with common headers.
func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do performs a request and maps non-2xx statuses to typed fetch errors.
// 304 is returned to the caller untouched.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, market.Classify(err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, statusError(resp, strings.TrimSpace(string(body)))
}

func statusError(resp *http.Response, body string) *market.FetchError {
	fe := &market.FetchError{
		Status: resp.StatusCode,
		Err:    fmt.Errorf("ESI %d: %s", resp.StatusCode, body),
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		fe.Kind = market.KindNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420:
		fe.Kind = market.KindRateLimited
		fe.RetryAfter = retryAfter(resp)
	case resp.StatusCode >= 500:
		fe.Kind = market.KindUnavailable
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		fe.Kind = market.KindMalformed
	default:
		fe.Kind = market.KindUnknown
	}
	return fe
}

// retryAfter reads Retry-After (seconds or HTTP date), then the ESI error-limit reset header.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	if v := resp.Header.Get("X-Esi-Error-Limit-Reset"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// getPaginated fetches every page of a paginated endpoint, decoding into T.
// Returns the page-1 ETag and Expires for caching.
func getPaginated[T any](ctx context.Context, c *Client, url string) ([]T, string, time.Time, error) {
	req, err := c.newRequest(ctx, url+"&page=1")
	if err != nil {
		return nil, "", time.Time{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	etag := resp.Header.Get("ETag")
	expires := parseExpires(resp, c.now())
	totalPages := 1
	if p := resp.Header.Get("X-Pages"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 1 {
			totalPages = n
		}
	}

	var all []T
	err = json.NewDecoder(resp.Body).Decode(&all)
	resp.Body.Close()
	if err != nil {
		return nil, "", time.Time{}, market.NewFetchError(market.KindMalformed, fmt.Errorf("decode page 1: %w", err))
	}

	for page := 2; page <= totalPages; page++ {
		preq, err := c.newRequest(ctx, fmt.Sprintf("%s&page=%d", url, page))
		if err != nil {
			return nil, "", time.Time{}, err
		}
		presp, err := c.do(preq)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		var data []T
		err = json.NewDecoder(presp.Body).Decode(&data)
		presp.Body.Close()
		if err != nil {
			return nil, "", time.Time{}, market.NewFetchError(market.KindMalformed, fmt.Errorf("decode page %d: %w", page, err))
		}
		all = append(all, data...)
	}
	return all, etag, expires, nil
}

// parseExpires reads the Expires header from an ESI response.
// Falls back to a 5-minute TTL if the header is missing or unparseable.
func parseExpires(resp *http.Response, now time.Time) time.Time {
	if exp := resp.Header.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			return t
		}
	}
	// ESI market orders typically refresh every 5 minutes.
	return now.Add(5 * time.Minute)
}

var errUnknownLocation = errors.New("unknown location")
