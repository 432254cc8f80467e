// Package client talks to the query, transform and data-flow endpoints the
// way the demo pages do.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"studentparent-server-go/models"
)

// APIError is a response envelope with "ok": false.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Msg)
}

// Response is a decoded query envelope.
type Response struct {
	OK   bool
	Code int
	Msg  string
	Raw  []byte
}

// Get returns the value stored under a top-level key such as "Student[]".
func (r *Response) Get(key string) gjson.Result {
	return gjson.GetBytes(r.Raw, gjson.Escape(key))
}

// Field returns path inside the top-level key, e.g. Field("Student[]", "0.total").
// Only key is escaped, so path keeps its gjson meaning.
func (r *Response) Field(key, path string) gjson.Result {
	return gjson.GetBytes(r.Raw, gjson.Escape(key)+"."+path)
}

// Object returns the row under key, or nil.
func (r *Response) Object(key string) map[string]any {
	m, _ := r.Get(key).Value().(map[string]any)
	return m
}

// Rows returns the rows under key. A single object counts as one row.
func (r *Response) Rows(key string) []map[string]any {
	res := r.Get(key)
	if res.IsObject() {
		return []map[string]any{res.Value().(map[string]any)}
	}
	var out []map[string]any
	for _, e := range res.Array() {
		if m, ok := e.Value().(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Data decodes the whole envelope.
func (r *Response) Data() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r.Raw, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return m, nil
}

// Client calls a running server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     *logrus.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with its 15s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger used for fallbacks and debug output.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client of the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the login token in use.
func (c *Client) Token() string { return c.token }

// post sends payload as JSON and returns the raw body and status.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, bytes.NewReader(body))
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s response: %w", path, err)
	}
	return data, resp.StatusCode, nil
}

// Do posts a query payload to the endpoint of method.
func (c *Client) Do(ctx context.Context, method models.Method, payload any) (*Response, error) {
	path := "/" + strings.ToLower(string(method))
	raw, status, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", path, status)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s: response is not JSON", path)
	}
	env := gjson.ParseBytes(raw)
	resp := &Response{
		OK:   env.Get("ok").Bool(),
		Code: int(env.Get("code").Int()),
		Msg:  env.Get("msg").String(),
		Raw:  raw,
	}
	c.log.WithFields(logrus.Fields{"method": method, "code": resp.Code}).Debug("query done")
	if !resp.OK {
		return resp, &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	return resp, nil
}

// Get, Head, Gets, Heads, Post, Put and Delete call the endpoint of the same name.
func (c *Client) Get(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodGet, payload)
}

func (c *Client) Head(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodHead, payload)
}

func (c *Client) Gets(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodGets, payload)
}

func (c *Client) Heads(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodHeads, payload)
}

func (c *Client) Post(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodPost, payload)
}

func (c *Client) Put(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodPut, payload)
}

func (c *Client) Delete(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, models.MethodDelete, payload)
}

// Login obtains a token and uses it for every later request.
func (c *Client) Login(ctx context.Context, phone, password string) error {
	raw, status, err := c.post(ctx, "/login", map[string]string{"phone": phone, "password": password})
	if err != nil {
		return err
	}
	res := gjson.ParseBytes(raw)
	if status != http.StatusOK || !res.Get("ok").Bool() {
		return &APIError{Code: int(res.Get("code").Int()), Msg: res.Get("msg").String()}
	}
	c.token = res.Get("token").String()
	return nil
}

// Count answers a HEAD request for one table object.
func (c *Client) Count(ctx context.Context, table string, conditions map[string]any) (int64, error) {
	if conditions == nil {
		conditions = map[string]any{}
	}
	resp, err := c.Head(ctx, map[string]any{table: conditions})
	if err != nil {
		return 0, err
	}
	return resp.Field(table, "count").Int(), nil
}

// Status checks that the query endpoint answers, the way the demo page does
// with a request for the Access table. Any HTTP 200 counts as up.
func (c *Client) Status(ctx context.Context) error {
	_, status, err := c.post(ctx, "/get", map[string]any{"Access": map[string]any{}})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("service answered %d", status)
	}
	return nil
}
