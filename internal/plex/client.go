// Package plex provides a read-only client for the Plex Media Server API.
package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoToken is returned when no Plex token is configured.
var ErrNoToken = errors.New("plex token not configured")

// Section is a library section.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Item is a library entry returned by recentlyAdded and search.
type Item struct {
	Type             string  `json:"type"`
	Title            string  `json:"title"`
	Year             int     `json:"year"`
	Rating           float64 `json:"rating"`
	Index            int     `json:"index"`
	ParentIndex      int     `json:"parentIndex"`
	ParentTitle      string  `json:"parentTitle"`
	GrandparentTitle string  `json:"grandparentTitle"`
}

type mediaContainer struct {
	MediaContainer struct {
		Size      int       `json:"size"`
		TotalSize int       `json:"totalSize"`
		Directory []Section `json:"Directory"`
		Metadata  []Item    `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Client queries one Plex server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Sections lists the library sections.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var mc mediaContainer
	if err := c.get(ctx, "/library/sections", nil, &mc); err != nil {
		return nil, err
	}
	return mc.MediaContainer.Directory, nil
}

// SectionSize returns the number of items in a section without fetching
// them.
func (c *Client) SectionSize(ctx context.Context, key string) (int, error) {
	header := http.Header{}
	header.Set("X-Plex-Container-Start", "0")
	header.Set("X-Plex-Container-Size", "0")

	var mc mediaContainer
	if err := c.get(ctx, "/library/sections/"+url.PathEscape(key)+"/all", header, &mc); err != nil {
		return 0, err
	}
	if mc.MediaContainer.TotalSize > 0 {
		return mc.MediaContainer.TotalSize, nil
	}
	return mc.MediaContainer.Size, nil
}

// RecentlyAdded returns recently added items, newest first.
func (c *Client) RecentlyAdded(ctx context.Context) ([]Item, error) {
	var mc mediaContainer
	if err := c.get(ctx, "/library/recentlyAdded", nil, &mc); err != nil {
		return nil, err
	}
	return mc.MediaContainer.Metadata, nil
}

// Search runs a library-wide title search.
func (c *Client) Search(ctx context.Context, query string) ([]Item, error) {
	var mc mediaContainer
	if err := c.get(ctx, "/search?query="+url.QueryEscape(query), nil, &mc); err != nil {
		return nil, err
	}
	return mc.MediaContainer.Metadata, nil
}

func (c *Client) get(ctx context.Context, path string, header http.Header, out any) error {
	if c.token == "" {
		return ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Product", "plexmon")
	req.Header.Set("X-Plex-Client-Identifier", "plexmon")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plex %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("plex %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("plex %s: decode: %w", path, err)
	}
	return nil
}
