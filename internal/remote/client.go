// Package remote is a thin typed client for the remote document store.
// Documents are gists: one file of text content, a description, a
// visibility flag, and a revision token returned on every read and write.
// The revision is the engine's sole basis for conflict detection.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	listPageSize   = 100
)

// HTTPClient abstracts HTTP operations for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Document is a fully fetched remote document.
type Document struct {
	ID          string
	Description string
	Content     string
	Revision    string
	UpdatedAt   time.Time
}

// DocumentInfo is a listing entry: metadata without content.
type DocumentInfo struct {
	ID          string
	Description string
	Revision    string
	UpdatedAt   time.Time
}

// Options configures a Client.
type Options struct {
	// BaseURL of the document store API. Empty means the public API.
	BaseURL string
	// Token authenticates every request. Acquisition only; the store
	// validates it.
	Token string
	// Timeout bounds each individual call attempt.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient HTTPClient
	// Logger receives retry and best-effort-failure messages. Nil means
	// a default stderr logger.
	Logger *log.Logger
}

// Client issues document operations against the remote store.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    HTTPClient
	logger  *log.Logger
}

// NewClient creates a Client from options, applying defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return c
}

// gistFile mirrors the wire shape of one file inside a document.
type gistFile struct {
	Content string `json:"content"`
}

// gistPayload is the request body for create and update calls.
type gistPayload struct {
	Description string              `json:"description,omitempty"`
	Public      *bool               `json:"public,omitempty"`
	Files       map[string]gistFile `json:"files"`
}

// gistResponse mirrors the wire shape of a document.
type gistResponse struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Files       map[string]gistFile `json:"files"`
	History     []struct {
		Version string `json:"version"`
	} `json:"history"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *gistResponse) revision() string {
	if len(g.History) > 0 {
		return g.History[0].Version
	}
	return ""
}

// content returns the document's text. Documents are single-file by
// construction of this system; if more than one file is present the
// lexically first is used.
func (g *gistResponse) content() string {
	if len(g.Files) == 0 {
		return ""
	}
	names := make([]string, 0, len(g.Files))
	for name := range g.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return g.Files[names[0]].Content
}

// Create publishes a new document and returns its id and revision.
func (c *Client) Create(ctx context.Context, filename, content, description string, private bool) (id, revision string, err error) {
	public := !private
	payload := gistPayload{
		Description: description,
		Public:      &public,
		Files:       map[string]gistFile{filename: {Content: content}},
	}

	var out gistResponse
	err = c.withRetry(ctx, "create", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/gists", "", payload, http.StatusCreated, &out)
	})
	if err != nil {
		return "", "", err
	}
	return out.ID, out.revision(), nil
}

// Get fetches a document's content and current revision.
func (c *Client) Get(ctx context.Context, id string) (*Document, error) {
	var out gistResponse
	err := c.withRetry(ctx, "get", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/gists/"+id, "", nil, http.StatusOK, &out)
	})
	if err != nil {
		return nil, err
	}
	return &Document{
		ID:          out.ID,
		Description: out.Description,
		Content:     out.content(),
		Revision:    out.revision(),
		UpdatedAt:   out.UpdatedAt,
	}, nil
}

// Update replaces a document's content. ifRevision, when non-empty, is an
// optimistic-concurrency precondition: the update is rejected with
// ErrRevisionMismatch if the document has moved since that revision was
// fetched. Returns the new revision.
func (c *Client) Update(ctx context.Context, id, filename, content, ifRevision string) (string, error) {
	payload := gistPayload{
		Files: map[string]gistFile{filename: {Content: content}},
	}

	var out gistResponse
	err := c.withRetry(ctx, "update", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPatch, "/gists/"+id, ifRevision, payload, http.StatusOK, &out)
	})
	if err != nil {
		return "", err
	}
	return out.revision(), nil
}

// Delete removes a document. Best-effort by contract: callers log and
// continue on failure.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.withRetry(ctx, "delete", func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/gists/"+id, "", nil, http.StatusNoContent, nil)
	})
}

// ListOwned returns every document owned by the authenticated account.
// Pagination is internal; the result is fully materialized, which is
// bounded by the owner's document count.
func (c *Client) ListOwned(ctx context.Context) ([]DocumentInfo, error) {
	var all []DocumentInfo
	for page := 1; ; page++ {
		var out []gistResponse
		path := fmt.Sprintf("/gists?per_page=%d&page=%d", listPageSize, page)
		err := c.withRetry(ctx, "list", func(ctx context.Context) error {
			return c.do(ctx, http.MethodGet, path, "", nil, http.StatusOK, &out)
		})
		if err != nil {
			return nil, err
		}
		for _, g := range out {
			all = append(all, DocumentInfo{
				ID:          g.ID,
				Description: g.Description,
				Revision:    g.revision(),
				UpdatedAt:   g.UpdatedAt,
			})
		}
		if len(out) < listPageSize {
			return all, nil
		}
	}
}

// do performs one HTTP call attempt and maps the response onto the failure
// taxonomy. ifRevision, when set, is sent as an If-Match precondition.
func (c *Client) do(ctx context.Context, method, path, ifRevision string, payload any, wantStatus int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifRevision != "" {
		req.Header.Set("If-Match", ifRevision)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A canceled parent context is the caller's interrupt, not a
		// transport fault.
		if ctx.Err() != nil && context.Cause(ctx) == context.Canceled {
			return ctx.Err()
		}
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		return c.statusError(method+" "+path, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decoding response: %w", err)}
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

// statusError maps an unexpected HTTP status onto a typed failure.
func (c *Client) statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrAuthenticationFailed)
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return &RateLimitedError{Op: op, RetryAfter: retryAfter(resp)}
		}
		return fmt.Errorf("%s: %w", op, ErrAuthenticationFailed)
	case http.StatusTooManyRequests:
		return &RateLimitedError{Op: op, RetryAfter: retryAfter(resp)}
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusPreconditionFailed, http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrRevisionMismatch)
	}

	if resp.StatusCode >= 500 {
		return &TransportError{Op: op, Err: fmt.Errorf("server error %d: %s", resp.StatusCode, snippet)}
	}
	return &TransportError{Op: op, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
