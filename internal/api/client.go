// Package api implements the remote session client of the corrector.
//
// Authentication travels as request parameters, not headers: the user key,
// the environment key, and a signature computed as md5 of
// userKey+environmentKey+token. The token itself never appears in a URL.
//
// Every response carries the server time and, optionally, rotated data and
// file tokens in its headers. The client feeds the server time to the
// clock reconciler and persists rotated tokens through the token sink; an
// absent token header means "keep the current token".
package api

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Response headers of the backend protocol.
const (
	HeaderServerTime = "longessaytime"
	HeaderDataToken  = "longessaydatatoken"
	HeaderFileToken  = "longessayfiletoken"
)

// Request parameters of the backend protocol.
const (
	ParamUser        = "LongEssayUser"
	ParamEnvironment = "LongEssayEnvironment"
	ParamSignature   = "LongEssaySignature"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 30 * time.Second

// ClockObserver receives the server timestamp of every response.
// Implemented by *clock.Reconciler.
type ClockObserver interface {
	Observe(ctx context.Context, serverSeconds int64)
}

// TokenSink persists rotated tokens. May be nil when rotation does not
// need to survive the process.
type TokenSink interface {
	SaveTokens(ctx context.Context, dataToken, fileToken string) error
}

// Config configures a Client.
type Config struct {
	// BackendURL is the base URL for REST calls. A query string already
	// present is preserved on every request.
	BackendURL     string
	UserKey        string
	EnvironmentKey string
	DataToken      string
	FileToken      string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// RequestIDs defaults to UUIDv7Generator.
	RequestIDs RequestIDGenerator
}

// Client issues authenticated calls against the correction backend.
type Client struct {
	http       *http.Client
	log        *slog.Logger
	clock      ClockObserver
	tokens     TokenSink
	requestIDs RequestIDGenerator

	baseURL        string
	baseParams     url.Values
	userKey        string
	environmentKey string

	mu        sync.Mutex
	dataToken string
	fileToken string
}

// New creates a client. clock receives the server time of every response;
// tokens (optional) persists rotated capabilities.
func New(cfg Config, clock ClockObserver, tokens TokenSink, log *slog.Logger) (*Client, error) {
	baseURL := cfg.BackendURL
	baseParams := url.Values{}

	// cut the query string off the base URL and keep it as base params;
	// REST paths are appended to the bare URL
	if i := strings.IndexByte(baseURL, '?'); i >= 0 {
		parsed, err := url.ParseQuery(baseURL[i+1:])
		if err != nil {
			return nil, fmt.Errorf("parse backend url query: %w", err)
		}
		baseParams = parsed
		baseURL = baseURL[:i]
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	requestIDs := cfg.RequestIDs
	if requestIDs == nil {
		requestIDs = UUIDv7Generator{}
	}

	return &Client{
		http:           &http.Client{Timeout: timeout},
		log:            log,
		clock:          clock,
		tokens:         tokens,
		requestIDs:     requestIDs,
		baseURL:        baseURL,
		baseParams:     baseParams,
		userKey:        cfg.UserKey,
		environmentKey: cfg.EnvironmentKey,
		dataToken:      cfg.DataToken,
		fileToken:      cfg.FileToken,
	}, nil
}

// Data loads the full bootstrap payload.
func (c *Client) Data(ctx context.Context) (*DataPayload, error) {
	var payload DataPayload
	if err := c.do(ctx, http.MethodGet, "/data", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Item loads the item-scoped payload for the given correction item.
func (c *Client) Item(ctx context.Context, itemKey string) (*ItemPayload, error) {
	var payload ItemPayload
	if err := c.do(ctx, http.MethodGet, "/item/"+url.PathEscape(itemKey), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SaveSummary pushes the correction summary to the backend.
func (c *Client) SaveSummary(ctx context.Context, itemKey string, body SummaryBody) error {
	return c.do(ctx, http.MethodPut, "/summary/"+url.PathEscape(itemKey), &body, nil)
}

// ResourceURL builds the signed URL for loading a file resource.
// Resource URLs are signed with the file token instead of the data token.
func (c *Client) ResourceURL(resourceKey string) string {
	c.mu.Lock()
	token := c.fileToken
	c.mu.Unlock()

	params := c.authParams(token)
	return c.baseURL + "/file/" + url.PathEscape(resourceKey) + "?" + params.Encode()
}

// Tokens returns the current data and file tokens.
func (c *Client) Tokens() (dataToken, fileToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataToken, c.fileToken
}

// authParams builds the authentication parameters for the given token on
// top of the base params of the backend URL.
func (c *Client) authParams(token string) url.Values {
	params := url.Values{}
	for key, values := range c.baseParams {
		params[key] = append([]string(nil), values...)
	}
	params.Set(ParamUser, c.userKey)
	params.Set(ParamEnvironment, c.environmentKey)
	params.Set(ParamSignature, Signature(c.userKey, c.environmentKey, token))
	return params
}

// Signature computes the request signature for the given token.
func Signature(userKey, environmentKey, token string) string {
	sum := md5.Sum([]byte(userKey + environmentKey + token))
	return hex.EncodeToString(sum[:])
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	token := c.dataToken
	c.mu.Unlock()

	requestURL := c.baseURL + path + "?" + c.authParams(token).Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: marshal body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", c.requestIDs.Generate())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// protocol metadata arrives on every response, success or not
	c.observeClock(ctx, resp)
	c.refreshTokens(ctx, resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: backend returned %s", method, path, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

// observeClock feeds the server-time header to the clock reconciler.
func (c *Client) observeClock(ctx context.Context, resp *http.Response) {
	raw := resp.Header.Get(HeaderServerTime)
	if raw == "" {
		return
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.log.Warn("ignoring unparseable server time header", "value", raw)
		return
	}
	c.clock.Observe(ctx, seconds)
}

// refreshTokens picks up rotated tokens from the response headers.
// Each call generates a new token with a limited validity; a missing
// header keeps the current token.
func (c *Client) refreshTokens(ctx context.Context, resp *http.Response) {
	newData := resp.Header.Get(HeaderDataToken)
	newFile := resp.Header.Get(HeaderFileToken)
	if newData == "" && newFile == "" {
		return
	}

	c.mu.Lock()
	if newData != "" {
		c.dataToken = newData
	}
	if newFile != "" {
		c.fileToken = newFile
	}
	dataToken, fileToken := c.dataToken, c.fileToken
	c.mu.Unlock()

	if c.tokens != nil {
		if err := c.tokens.SaveTokens(ctx, dataToken, fileToken); err != nil {
			c.log.Error("failed to persist rotated tokens", "error", err)
		}
	}
}
