package syncclient

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

	"github.com/google/uuid"

	"github.com/MimeLyc/presentation-params/internal/apperr"
	"github.com/MimeLyc/presentation-params/internal/params"
)

const (
	SavePath           = "/save_params"
	DefaultPushTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// SaveResult is the body the save endpoint answers with.
type SaveResult struct {
	Status  string `json:"status"`
	File    string `json:"file,omitempty"`
	Message string `json:"message,omitempty"`
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithPushTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithSessionID(id string) ClientOption {
	return func(c *Client) {
		c.sessionID = id
	}
}

// Client talks to the persistence server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	sessionID  string
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultPushTimeout,
		sessionID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID is sent as X-Session-Id so server logs can tell editors apart.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Push sends snap to the save endpoint. Any transport failure, non-2xx status
// or non-"ok" body is an error; the caller decides whether to stage it.
func (c *Client) Push(ctx context.Context, snap params.Snapshot) (*SaveResult, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrParse, "encode snapshot")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SavePath, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrConfig, "build save request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set("X-Session-Id", c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrNetwork, "push snapshot")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrNetwork, "read save response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.New(apperr.ErrRemote, fmt.Sprintf("save endpoint returned HTTP %d", resp.StatusCode)).
			WithContext("body", strings.TrimSpace(string(raw)))
	}

	var result SaveResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrRemote, "decode save response")
	}
	if result.Status != "ok" {
		return nil, apperr.New(apperr.ErrRemote, "save endpoint did not confirm").
			WithContext("status", result.Status).
			WithContext("message", result.Message)
	}
	return &result, nil
}

// FetchDocument downloads the shared document through the static file server.
// A missing document is reported as an empty one.
func (c *Client) FetchDocument(ctx context.Context, fileName string) (params.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(fileName), nil)
	if err != nil {
		return params.Document{}, apperr.Wrap(err, apperr.ErrConfig, "build document request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return params.Document{}, apperr.Wrap(err, apperr.ErrNetwork, "fetch params document")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return params.EmptyDocument(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return params.Document{}, apperr.New(apperr.ErrRemote, fmt.Sprintf("document fetch returned HTTP %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return params.Document{}, apperr.Wrap(err, apperr.ErrNetwork, "read params document")
	}
	return params.ParseDocument(raw), nil
}
