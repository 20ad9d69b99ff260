// Package apiclient is the storefront REST client. Every request carries the stored
// bearer token and the anti-forgery header; a 401 triggers one token refresh and one
// resend of the original request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/storefront/internal/credentials"
	"github.com/Skotchmaster/storefront/pkg/authclient"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const (
	HeaderCSRF      = "X-CSRFToken"
	CSRFCookieName  = "csrftoken"
	headerRequestID = "X-Request-ID"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

type Client struct {
	base    *url.URL
	http    *http.Client
	auth    *authclient.Client
	creds   credentials.Store
	log     *slog.Logger
	metrics *Metrics

	refreshes singleflight.Group

	mu            sync.RWMutex
	onAuthFailure func(context.Context)
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added when the
// client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithAuthFailureHandler sets the hook run after an unrecoverable refresh failure,
// once the stored credentials have been cleared.
func WithAuthFailureHandler(fn func(context.Context)) Option {
	return func(c *Client) {
		c.onAuthFailure = fn
	}
}

func New(baseURL string, creds credentials.Store, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:  base,
		http:  &http.Client{Timeout: defaultTimeout},
		creds: creds,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	c.auth = authclient.NewClientWithHTTP(base.String(), &http.Client{
		Timeout:   c.http.Timeout,
		Transport: c.http.Transport,
	})

	return c, nil
}

// OnAuthFailure replaces the auth failure hook. The session store installs itself here.
func (c *Client) OnAuthFailure(fn func(context.Context)) {
	c.mu.Lock()
	c.onAuthFailure = fn
	c.mu.Unlock()
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// NoRetry turns off refresh-and-retry. Set for the credential endpoints.
	NoRetry bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends req. Status codes >= 400 are returned as *Error.
//
// On 401 the stored refresh token is exchanged once (concurrent callers share the
// exchange) and the request is resent exactly once with the new access token. When
// the exchange fails the credentials are cleared, the auth failure hook runs, and
// the call fails with KindUnauthorized.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Method: req.Method, Path: req.Path, Message: "encode body", Err: err}
	}

	resp, err := c.send(ctx, req, payload, "")
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && !req.NoRetry {
		access, rerr := c.refreshAccess(ctx)
		if rerr != nil && ctx.Err() != nil {
			// The caller gave up; the stored refresh token may still be good.
			return nil, &Error{Kind: KindNetwork, Method: req.Method, Path: req.Path, Message: "token refresh abandoned", Err: ctx.Err()}
		}
		if rerr != nil {
			c.log.Warn("token_refresh_failed", "method", req.Method, "path", req.Path, "error", rerr)
			c.authFailed(ctx)
			return nil, &Error{
				Kind:    KindUnauthorized,
				Status:  resp.Status,
				Method:  req.Method,
				Path:    req.Path,
				Message: "session expired",
				Err:     rerr,
			}
		}

		c.metrics.observeRetry()
		resp, err = c.send(ctx, req, payload, access)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status >= http.StatusBadRequest {
		return nil, newStatusError(req, resp)
	}
	return resp, nil
}

// RefreshSession exchanges the stored refresh token for a new access token without
// touching the auth failure hook. Used by the silent refresh loop.
func (c *Client) RefreshSession(ctx context.Context) error {
	_, err := c.refreshAccess(ctx)
	return err
}

func (c *Client) call(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{
			Kind:    KindServer,
			Status:  resp.Status,
			Method:  req.Method,
			Path:    req.Path,
			Message: "malformed response body",
			Err:     err,
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request, payload []byte, bearer string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.resolve(req.Path, req.Query), body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Method: req.Method, Path: req.Path, Message: "build request", Err: err}
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("X-Requested-With", "XMLHttpRequest")
	hreq.Header.Set(headerRequestID, uuid.NewString())
	for k, vs := range req.Header {
		hreq.Header.Del(k)
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	if bearer == "" {
		creds, err := c.creds.Load(ctx)
		if err != nil {
			c.log.Warn("credentials_load_failed", "error", err)
		}
		bearer = creds.AccessToken
	}
	if bearer != "" {
		hreq.Header.Set("Authorization", "Bearer "+bearer)
	}
	if token := c.csrfToken(); token != "" {
		hreq.Header.Set(HeaderCSRF, token)
	}

	start := time.Now()
	hresp, err := c.http.Do(hreq)
	if err != nil {
		c.metrics.observeRequest(req.Method, 0, time.Since(start))
		return nil, &Error{Kind: KindNetwork, Method: req.Method, Path: req.Path, Err: err}
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	c.metrics.observeRequest(req.Method, hresp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: hresp.StatusCode, Method: req.Method, Path: req.Path, Message: "read body", Err: err}
	}

	c.log.Debug("api_request",
		"method", req.Method,
		"path", req.Path,
		"status", hresp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{Status: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}

func (c *Client) resolve(p string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(p, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) csrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == CSRFCookieName {
			return ck.Value
		}
	}
	return ""
}

// refreshAccess runs one shared exchange detached from any single caller, so a
// cancelled caller neither aborts the exchange for the others nor waits for it.
func (c *Client) refreshAccess(ctx context.Context) (string, error) {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return c.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) refreshTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return defaultTimeout
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	creds, err := c.creds.Load(ctx)
	if err != nil {
		c.metrics.observeRefresh(err)
		return "", fmt.Errorf("load credentials: %w", err)
	}
	if creds.RefreshToken == "" {
		c.metrics.observeRefresh(ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}

	res, err := c.auth.RefreshTokens(ctx, creds.RefreshToken)
	c.metrics.observeRefresh(err)
	if err != nil {
		return "", err
	}

	if res.Refresh != "" {
		creds.AccessToken = res.Access
		creds.RefreshToken = res.Refresh
		err = c.creds.Save(ctx, creds)
	} else {
		err = c.creds.SetAccessToken(ctx, res.Access)
	}
	if err != nil {
		return "", fmt.Errorf("store refreshed token: %w", err)
	}

	c.log.Debug("token_refreshed", "rotated", res.Refresh != "")
	return res.Access, nil
}

func (c *Client) authFailed(ctx context.Context) {
	if err := c.creds.Clear(ctx); err != nil {
		c.log.Error("credentials_clear_failed", "error", err)
	}

	c.mu.RLock()
	fn := c.onAuthFailure
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
