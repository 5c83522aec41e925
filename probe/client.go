// Package probe runs HTTP smoke tests against a backend: reachability of GET
// endpoints and the JSON contract of POST endpoints.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const mimeJSON = "application/json"

// Transport failures are classified into these sentinels.
var (
	ErrTimeout          = errors.New("timeout reached")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrUnreachable      = errors.New("unable to connect")
)

// RequestError names the failed call and the classified cause.
type RequestError struct {
	Method string
	URL    string
	Kind   error // one of the sentinels above
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("HTTP%s: %v: %s", e.Method, e.Kind, e.URL)
}

func (e *RequestError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Client issues smoke-test requests.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// NewClient creates a client with the given per-request timeout. As with the
// net/http default policy, a redirect chain is refused once maxRedirects
// requests have been made.
func NewClient(timeout time.Duration, maxRedirects int, log *zap.Logger) *Client {
	c := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		}))
	c.JSONMarshal = json.Marshal
	c.JSONUnmarshal = json.Unmarshal
	return &Client{http: c, log: log}
}

// Response is the part of an HTTP reply the checks look at.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a status below 400.
func (r *Response) OK() bool {
	return r.StatusCode < http.StatusBadRequest
}

// Get fetches url.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, classify(http.MethodGet, url, err)
	}
	return c.response(http.MethodGet, url, resp), nil
}

// PostJSON posts body encoded as JSON and asks for a JSON reply.
func (c *Client) PostJSON(ctx context.Context, url string, body any) (*Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", mimeJSON).
		SetHeader("Accept", mimeJSON).
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, classify(http.MethodPost, url, err)
	}
	return c.response(http.MethodPost, url, resp), nil
}

func (c *Client) response(method, url string, resp *resty.Response) *Response {
	c.log.Debug("response",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", resp.Time()),
	)
	return &Response{
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}
}

func classify(method, url string, err error) error {
	kind := ErrUnreachable
	var netErr net.Error
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		kind = ErrTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrTimeout
	}
	return &RequestError{Method: method, URL: url, Kind: kind, Err: err}
}
