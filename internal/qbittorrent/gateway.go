// Package qbittorrent talks to the qBittorrent WebUI API behind a
// self-renewing login session.
package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/metrics"
)

var (
	// ErrUnreachable is returned when the API cannot be reached.
	ErrUnreachable = errors.New("download service unreachable")
	// ErrAuthenticationFailed is returned when no valid session could be
	// established, including after one re-login.
	ErrAuthenticationFailed = errors.New("download service authentication failed")
)

// maxAttempts bounds the number of times one call is issued. The second
// attempt only happens after a 403 invalidated the session.
const maxAttempts = 2

const loginTimeout = 5 * time.Second

// StatusError is an unexpected non-2xx, non-403 response. It matches
// ErrUnreachable.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap classifies the response as the service being unusable.
func (e *StatusError) Unwrap() error {
	return ErrUnreachable
}

// Request describes one API call relative to /api/v2.
type Request struct {
	Method string
	Path   string
	// Form is sent url-encoded for POST, as the query string otherwise.
	Form url.Values
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Config holds gateway configuration.
type Config struct {
	BaseURL  string
	Username string
	Password string
	// HTTPClient is optional. Action calls are not time-bounded beyond its
	// Timeout.
	HTTPClient *http.Client
}

// Gateway owns the login session and re-authenticates transparently.
type Gateway struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	// loginMu serialises logins so concurrent callers share one.
	loginMu sync.Mutex

	mu    sync.RWMutex
	sid   string
	valid bool
	// gen counts logins. A rejection only invalidates the session the
	// rejected request was sent with.
	gen uint64
}

// NewGateway creates a gateway with an empty, invalid session.
func NewGateway(cfg Config) *Gateway {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}
	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: hc,
	}
}

// SessionValid reports whether the gateway currently holds a session.
func (g *Gateway) SessionValid() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.valid
}

// Login establishes a session if none is valid.
func (g *Gateway) Login(ctx context.Context) error {
	return g.ensureSession(ctx)
}

// Call issues req with the current session. A 403 invalidates the session
// and the call is issued once more after a fresh login.
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := g.ensureSession(ctx); err != nil {
			metrics.RecordGatewayCall(req.Path, "auth_failed")
			return nil, err
		}

		sid, gen := g.session()
		resp, err := g.do(ctx, req, sid)
		if err != nil {
			metrics.RecordGatewayCall(req.Path, "unreachable")
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, req.Path, err)
		}

		if resp.StatusCode == http.StatusForbidden {
			logging.Warn("download session rejected",
				logging.String("endpoint", req.Path),
				logging.Int("attempt", attempt),
			)
			g.invalidate(gen)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			metrics.RecordGatewayCall(req.Path, "error")
			return nil, &StatusError{
				Endpoint:   req.Path,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(resp.Body)),
			}
		}

		metrics.RecordGatewayCall(req.Path, "ok")
		return resp, nil
	}

	metrics.RecordGatewayCall(req.Path, "auth_failed")
	return nil, fmt.Errorf("%w: %s rejected after re-login", ErrAuthenticationFailed, req.Path)
}

func (g *Gateway) session() (string, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sid, g.gen
}

// invalidate drops the session from login gen. A newer session is kept.
func (g *Gateway) invalidate(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gen != gen {
		return
	}
	g.valid = false
	g.sid = ""
}

func (g *Gateway) ensureSession(ctx context.Context) error {
	if g.SessionValid() {
		return nil
	}

	g.loginMu.Lock()
	defer g.loginMu.Unlock()

	// Another caller may have logged in while we waited.
	if g.SessionValid() {
		return nil
	}

	sid, err := g.login(ctx)
	metrics.RecordGatewayLogin(err == nil)
	if err != nil {
		logging.Warn("download service login failed", logging.Err(err))
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	g.mu.Lock()
	g.sid = sid
	g.valid = true
	g.gen++
	g.mu.Unlock()

	logging.Info("download service login succeeded")
	return nil
}

// login posts credentials. Depending on the server version success is a SID
// cookie, an "Ok." body, or both.
func (g *Gateway) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("username", g.username)
	form.Set("password", g.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Newer servers reject logins without a matching Referer.
	req.Header.Set("Referer", g.baseURL)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", err
	}

	for _, c := range resp.Cookies() {
		if c.Name == "SID" && c.Value != "" {
			return c.Value, nil
		}
	}
	if strings.TrimSpace(string(body)) == "Ok." {
		return "", nil
	}
	return "", fmt.Errorf("login rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (g *Gateway) do(ctx context.Context, r Request, sid string) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := g.baseURL + "/api/v2" + r.Path

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(r.Form.Encode())
	} else if len(r.Form) > 0 {
		endpoint += "?" + r.Form.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Referer", g.baseURL)

	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "SID", Value: sid})
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
