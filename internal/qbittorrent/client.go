package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
)

// AllTorrents selects every torrent in pause/resume calls.
const AllTorrents = "all"

// Caller is the session-managed transport used by Client.
type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Client exposes the WebUI operations plexmon needs.
type Client struct {
	caller Caller
}

// NewClient wraps a gateway.
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// List returns every torrent known to the server.
func (c *Client) List(ctx context.Context) ([]qbt.Torrent, error) {
	resp, err := c.caller.Call(ctx, Request{Method: http.MethodGet, Path: "/torrents/info"})
	if err != nil {
		return nil, err
	}
	var torrents []qbt.Torrent
	if err := json.Unmarshal(resp.Body, &torrents); err != nil {
		return nil, fmt.Errorf("decode torrents: %w", err)
	}
	return torrents, nil
}

// Add queues uri for download into savePath with automatic torrent
// management disabled so the path sticks.
func (c *Client) Add(ctx context.Context, uri, savePath string) error {
	form := url.Values{}
	form.Set("urls", uri)
	form.Set("savepath", savePath)
	form.Set("autoTMM", "false")

	resp, err := c.caller.Call(ctx, Request{Method: http.MethodPost, Path: "/torrents/add", Form: form})
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(resp.Body)) == "Fails." {
		return errors.New("server refused the torrent")
	}
	return nil
}

// Pause pauses one torrent by hash, or AllTorrents.
func (c *Client) Pause(ctx context.Context, hash string) error {
	return c.hashAction(ctx, "/torrents/pause", "/torrents/stop", hash)
}

// Resume resumes one torrent by hash, or AllTorrents.
func (c *Client) Resume(ctx context.Context, hash string) error {
	return c.hashAction(ctx, "/torrents/resume", "/torrents/start", hash)
}

// Delete removes a torrent, optionally with its downloaded data.
func (c *Client) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	form := url.Values{}
	form.Set("hashes", hash)
	form.Set("deleteFiles", strconv.FormatBool(deleteFiles))
	_, err := c.caller.Call(ctx, Request{Method: http.MethodPost, Path: "/torrents/delete", Form: form})
	return err
}

// TransferInfo returns global transfer rates.
func (c *Client) TransferInfo(ctx context.Context) (*qbt.TransferInfo, error) {
	resp, err := c.caller.Call(ctx, Request{Method: http.MethodGet, Path: "/transfer/info"})
	if err != nil {
		return nil, err
	}
	var info qbt.TransferInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, fmt.Errorf("decode transfer info: %w", err)
	}
	return &info, nil
}

// hashAction posts hashes to path. qBittorrent 5 renamed pause/resume to
// stop/start and answers 404 on the old names.
func (c *Client) hashAction(ctx context.Context, path, fallback, hash string) error {
	form := url.Values{}
	form.Set("hashes", hash)

	_, err := c.caller.Call(ctx, Request{Method: http.MethodPost, Path: path, Form: form})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		_, err = c.caller.Call(ctx, Request{Method: http.MethodPost, Path: fallback, Form: form})
	}
	return err
}
