// Package apiclient talks to the backend REST API on behalf of a console
// operator.
package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

// tokenError means the session has no usable token left. The console
// answers these with 401 so the browser goes back to the login screen.
type tokenError string

func (e tokenError) Error() string {
	return string(e)
}

func (tokenError) Unauthenticated() bool {
	return true
}

var (
	// ErrUnauthenticated is returned before any network call when there is
	// no access token to send.
	ErrUnauthenticated error = tokenError("User not authenticated")
	// ErrNoRefreshToken is returned when a refresh is needed but the
	// session never had a refresh token.
	ErrNoRefreshToken error = tokenError("No refresh token available")
)

// Request describes one call to the backend. Path is relative to the base
// URL and Body, when set, is sent as JSON.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Requester is implemented by both the anonymous Client and the
// token-carrying Authed client.
type Requester interface {
	Do(ctx context.Context, req Request, out interface{}) error
}

// TokenSource provides bearer tokens. Refresh is only ever called after the
// backend rejected the current access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	rejectStatus int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRejectStatus changes the status code treated as "access token
// rejected". The backend uses 403. Zero keeps the default.
func WithRejectStatus(status int) Option {
	return func(c *Client) {
		if status != 0 {
			c.rejectStatus = status
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		rejectStatus: http.StatusForbidden,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends an anonymous request.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	return c.send(ctx, req, "", out)
}

// WithTokens returns a client that authenticates every request with tokens.
func (c *Client) WithTokens(tokens TokenSource) *Authed {
	return &Authed{client: c, tokens: tokens}
}

func (c *Client) send(ctx context.Context, req Request, token string, out interface{}) error {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return errors.WithStack(err)
		}
		body = bytes.NewReader(b)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.WithStack(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}
		return &Error{Message: "Backend unavailable: " + err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, respBody)
	}

	return decodeInto(respBody, out)
}

func decodeInto(body []byte, out interface{}) error {
	switch o := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*o = body
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return errors.WithStack(json.Unmarshal(body, out))
}

// Authed attaches bearer tokens and recovers from one rejected access token
// per request by refreshing and retrying.
type Authed struct {
	client *Client
	tokens TokenSource
}

func (a *Authed) Do(ctx context.Context, req Request, out interface{}) error {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrUnauthenticated
	}

	err = a.client.send(ctx, req, token, out)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != a.client.rejectStatus {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info("access token rejected, refreshing", logger.Data{"method": req.Method, "path": req.Path})

	token, err = a.tokens.Refresh(ctx)
	if err != nil {
		return err
	}

	err = a.client.send(ctx, req, token, out)
	if err != nil {
		log.Warn("request failed after token refresh", logger.Data{"method": req.Method, "path": req.Path, "error": err.Error()})
	}
	return err
}
