package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guiyumin/biliget/internal/core/config"
)

const (
	// SiteRoot is sent as Origin and used to build watch-page referers.
	SiteRoot = "https://www.bilibili.com"

	DefaultAPIBase      = "https://api.bilibili.com"
	DefaultPassportBase = "https://passport.bilibili.com"

	// UserAgent must look like a desktop browser or the CDN answers 403.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client talks to the Bilibili web API
type Client struct {
	http         *http.Client
	apiBase      string
	passportBase string
	cookie       string
	profile      Profile
	signer       *Signer
	now          func() time.Time
	log          *zap.SugaredLogger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default 30s-timeout client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIBase points API calls at another host (tests, mirrors)
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(base, "/") }
}

// WithPassportBase points login calls at another host
func WithPassportBase(base string) Option {
	return func(c *Client) { c.passportBase = strings.TrimRight(base, "/") }
}

// WithCookie sets the session cookie. A bare token is treated as SESSDATA.
func WithCookie(cookie string) Option {
	return func(c *Client) { c.cookie = NormalizeCookie(cookie) }
}

// WithProfile selects fallback and identifier behavior
func WithProfile(p Profile) Option {
	return func(c *Client) { c.profile = p }
}

// WithClock overrides the time source used for WBI timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Client with its own Signer
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		apiBase:      DefaultAPIBase,
		passportBase: DefaultPassportBase,
		profile:      ProfileFull,
		now:          time.Now,
		log:          zap.S().Named("bilibili"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.signer = NewSigner(c.fetchWBIImages, c.now)
	return c
}

// NewClientFromConfig builds a client from the user's settings
func NewClientFromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithCookie(cfg.Bilibili.Cookie),
		WithProfile(Profile{
			LegacyFallback:   cfg.Bilibili.LegacyFallback,
			AcceptNumericIDs: cfg.Bilibili.AcceptNumericIDs,
		}),
	}
	return NewClient(append(base, opts...)...)
}

// Profile returns the active profile
func (c *Client) Profile() Profile {
	return c.profile
}

// HasSession reports whether a SESSDATA cookie is configured
func (c *Client) HasSession() bool {
	return strings.Contains(c.cookie, "SESSDATA=")
}

// NormalizeCookie accepts either a full cookie header or a bare SESSDATA value
func NormalizeCookie(cookie string) string {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" || strings.Contains(cookie, "=") {
		return cookie
	}
	return "SESSDATA=" + cookie
}

// Headers returns the header set the platform expects on every request.
// referer should be the watch page of the part being fetched.
func (c *Client) Headers(referer string) http.Header {
	if referer == "" {
		referer = SiteRoot + "/"
	}
	h := http.Header{}
	h.Set("User-Agent", UserAgent)
	h.Set("Referer", referer)
	h.Set("Origin", SiteRoot)
	if c.cookie != "" {
		h.Set("Cookie", c.cookie)
	}
	return h
}

// envelope is the common {code, message, data} response wrapper
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) err() error {
	if e.Code != 0 {
		return &APIError{Code: e.Code, Message: e.Message}
	}
	return nil
}

// getJSON fetches and decodes an envelope. Transport failures and non-200
// statuses wrap ErrNetwork; the envelope code is left to the caller.
func (c *Client) getJSON(ctx context.Context, rawURL, referer string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.Headers(referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrNetwork, req.URL.Path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &env, nil
}
