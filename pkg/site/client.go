package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"artsync/pkg/config"
	errs "artsync/pkg/errors"
	"artsync/pkg/logger"
	"artsync/pkg/ratelimit"
	"artsync/pkg/retry"
)

// maxPageBytes bounds how much of a listing page is read into memory
const maxPageBytes = 16 << 20

// Client talks to the site on behalf of one logged-in user
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	r18        bool
	large      bool
	logger     logger.Logger
	throttle   ratelimit.Limiter
	backoff    retry.BackoffStrategy
	sleep      func(ctx context.Context, d time.Duration) error

	// profile caches the id list of the last account listed, so paging
	// through one account does not refetch it for every page
	profile *profileCache
}

// NewClient creates a client from the site and network settings
func NewClient(site config.SiteConfig, network config.NetworkConfig, log logger.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: network.Timeout},
		headers: map[string]string{
			"User-Agent":      site.UserAgent,
			"Accept":          "application/json, text/html;q=0.9, */*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		baseURL: strings.TrimRight(site.BaseURL, "/"),
		r18:     site.R18Mode,
		large:   site.LargePages,
		logger:  logger.Or(log),
		backoff: retry.DefaultExponentialBackoff(),
		sleep:   retry.Wait,
	}
	if site.Cookie != "" {
		c.SetCookie(site.Cookie)
	}
	if network.RequestsPerMinute > 0 {
		c.throttle = ratelimit.PerMinute(network.RequestsPerMinute)
	}
	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetCookie installs the session cookie. A bare value is taken as the
// session id.
func (c *Client) SetCookie(cookie string) {
	if !strings.Contains(cookie, "=") {
		cookie = "PHPSESSID=" + cookie
	}
	c.headers["Cookie"] = cookie
}

// BaseURL is the site root requests are made against
func (c *Client) BaseURL() string { return c.baseURL }

// LargePages reports whether accounts use the 50-item layout
func (c *Client) LargePages() bool { return c.large }

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request, referer string) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.NewNetwork(err, req.URL.String())
	}
	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, time.Since(start))
	return resp, nil
}

// HTTPGet fetches url without status mapping or throttling. The download
// engine uses it for file transfers and size probes.
func (c *Client) HTTPGet(ctx context.Context, url, referer string, headOnly bool) (*http.Response, error) {
	method := http.MethodGet
	if headOnly {
		method = http.MethodHead
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.doRequest(req, referer)
}

// fetch GETs a site page, throttled, and returns its body. 429 answers are
// retried with exponential backoff.
func (c *Client) fetch(ctx context.Context, url, referer string) ([]byte, error) {
	return retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: 3,
		Backoff:     c.backoff,
		Sleep:       c.sleep,
		Logger:      c.logger,
		RetryIf:     func(err error) bool { return errs.Is(err, errs.ErrorTypeRateLimit) },
	}, func(ctx context.Context, _ int) ([]byte, error) {
		if c.throttle != nil {
			if err := c.throttle.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.doRequest(req, referer)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return nil, errs.NewNetwork(err, url)
		}
		if err := c.checkResponseStatus(resp, body); err != nil {
			return body, err
		}
		return body, nil
	})
}

// checkResponseStatus maps an HTTP status to a classified fault. The body is
// attached so it can be dumped.
func (c *Client) checkResponseStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}
	url := resp.Request.URL.String()
	fields := map[string]interface{}{"status": resp.StatusCode, "url": url}

	var e *errs.Error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		e = errs.NewAuth("session rejected by " + url)
		e.Code = resp.StatusCode
	case http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		e = &errs.Error{Type: errs.ErrorTypeNotFound, Code: resp.StatusCode, Message: url + " not found"}
	case http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", fields)
		e = &errs.Error{Type: errs.ErrorTypeRateLimit, Code: resp.StatusCode, Message: "rate limit exceeded"}
	default:
		c.logger.ErrorWithFields("unexpected status", fields)
		if errs.IsPermanentStatus(resp.StatusCode) {
			e = errs.NewPermanentHTTP(resp.StatusCode, url)
		} else {
			e = &errs.Error{Type: errs.ErrorTypeNetwork, Code: resp.StatusCode, Message: fmt.Sprintf("%s returned %d", url, resp.StatusCode)}
		}
	}
	e.Page = body
	return e
}
