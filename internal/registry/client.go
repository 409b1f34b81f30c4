// Package registry resolves which pushed image tag a release should deploy.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrEndpointRequired = errors.New("registry: endpoint required")
	ErrBadStatus        = errors.New("registry: unexpected response status")
)

// TagInfo is one pushed tag as reported by the registry.
type TagInfo struct {
	Tag      string
	PushedAt time.Time
}

// TagLister is the registry collaborator contract consumed by the Resolver.
type TagLister interface {
	ListTags(ctx context.Context, repository string) ([]TagInfo, error)
}

// Client queries the registry HTTP API for pushed tags.
type Client struct {
	endpoint  string
	namespace string
	client    *http.Client
}

// NewClient creates a registry client. timeout bounds every query; an
// exceeded timeout surfaces as an ordinary error for the resolver fallback.
func NewClient(endpoint, namespace string, timeout time.Duration) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:  endpoint,
		namespace: strings.Trim(strings.TrimSpace(namespace), "/"),
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type tagEntry struct {
	Name     string    `json:"name"`
	PushedAt time.Time `json:"pushed_at"`
}

// ListTags returns every pushed tag for one repository, newest first.
func (c *Client) ListTags(ctx context.Context, repository string) ([]TagInfo, error) {
	name := strings.TrimSpace(repository)
	if c.namespace != "" {
		name = c.namespace + "/" + name
	}
	url := fmt.Sprintf("%s/api/repositories/%s/tags", c.endpoint, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: query %s: %w", repository, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d for %s", ErrBadStatus, resp.StatusCode, repository)
	}

	var payload struct {
		Tags []tagEntry `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("registry: decode tags for %s: %w", repository, err)
	}

	out := make([]TagInfo, 0, len(payload.Tags))
	for _, t := range payload.Tags {
		out = append(out, TagInfo{Tag: t.Name, PushedAt: t.PushedAt})
	}
	return out, nil
}
