// Package api talks to the Power Policy HTTP API.
//
// Every call is classified into exactly one of three outcomes: Success
// carrying the raw body, Unauthorized (the server rejected the bearer
// token), or Failure carrying a user-facing message. The client holds no
// session state of its own; it only reads the token through a TokenSource.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBody caps how much of a response is read into memory.
const maxBody = 8 << 20

// TokenSource yields the current bearer token.
type TokenSource interface {
	Get() (string, bool)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is the sustained outbound requests per second; zero disables throttling.
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client issues authorized requests against one API base URL.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(tokens TokenSource, opts Options) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("token source required")
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
		if opts.Timeout > 0 {
			hc.Timeout = opts.Timeout
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{base: base, http: hc, tokens: tokens, limiter: limiter, log: log}, nil
}

// BaseURL returns the API root the client was built for.
func (c *Client) BaseURL() string { return c.base.String() }

// Call performs req and classifies the response. It never returns a Go
// error: transport problems surface as a Failure result.
func (c *Client) Call(ctx context.Context, req Request) Result {
	start := time.Now()
	log := c.log.With(zap.String("method", req.Method), zap.String("path", req.Path))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.transportFailure(log, req, errors.Wrap(err, "rate limit"))
		}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return c.transportFailure(log, req, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportFailure(log, req, errors.Wrapf(err, "%s %s", req.Method, req.Path))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return c.transportFailure(log, req, errors.Wrap(err, "read response"))
	}

	res := classify(resp.StatusCode, body, req.Fallback)
	log = log.With(zap.Int("status", res.Status), zap.Duration("elapsed", time.Since(start)))
	switch res.Kind {
	case Unauthorized:
		log.Info("api unauthorized")
	case Failure:
		log.Warn("api failure", zap.String("message", res.Message))
	default:
		log.Debug("api ok", zap.Int("bytes", len(body)))
	}
	return res
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + req.Path
	u.RawPath = ""
	u.RawQuery = ""
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := c.tokens.Get(); ok {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}
	return httpReq, nil
}

// transportFailure reports a call that got no usable response. The view
// gets the request's own message; the cause goes to the log.
func (c *Client) transportFailure(log *zap.Logger, req Request, err error) Result {
	log.Warn("api transport error", zap.Error(err))
	msg := req.Fallback
	if msg == "" {
		msg = "Could not reach the server"
	}
	return Result{Kind: Failure, Message: msg, Err: err}
}

func classify(status int, body []byte, fallback string) Result {
	switch {
	case status == http.StatusUnauthorized:
		return Result{Kind: Unauthorized, Status: status}
	case status < 200 || status > 299:
		msg := failureMessage(body)
		if msg == "" {
			msg = fallback
		}
		if msg == "" {
			msg = fmt.Sprintf("request failed (%d %s)", status, http.StatusText(status))
		}
		return Result{Kind: Failure, Status: status, Body: body, Message: msg}
	default:
		return Result{Kind: Success, Status: status, Body: body}
	}
}

// failureMessage extracts the server's error text. FastAPI sends
// {"detail": "..."} for handled errors and {"detail": [{"msg": ...}]} for
// validation errors.
func failureMessage(body []byte) string {
	var eb struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Detail) > 0 {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(eb.Detail, &items); err == nil {
			var msgs []string
			for _, it := range items {
				if m := strings.TrimSpace(it.Msg); m != "" {
					msgs = append(msgs, m)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(eb.Message)
}
