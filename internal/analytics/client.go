package analytics

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/session"
)

// maxResponseBytes caps how much of a response body we read. Count
// responses are tiny and even the search page fits comfortably; anything
// larger is not the service we expect.
const maxResponseBytes = 4 << 20

// API paths on the analytics service.
const (
	loginPath      = "/api/v1/sessions"
	countPath      = "/api/v1/search/count"
	healthPath     = "/api/v1/health"
	searchPagePath = "/search"
)

// sessionCookieName is the cookie the service sets at login. We persist
// it alongside the bearer token because some deployments gate the search
// page on the cookie rather than the Authorization header.
const sessionCookieName = "analytics_session"

// Client speaks to the remote analytics service. It is safe for
// concurrent use; the session is passed per call rather than held as
// client state so that a refreshed session takes effect without
// rebuilding the client.
//
// Design decision: We don't log in from the constructor because:
// 1. It allows creating the client before credentials are known
// 2. It separates object creation from network operations
// 3. It lets the session manager own the login lifecycle
type Client struct {
	// endpoint is the validated base URL of the service.
	endpoint *url.URL

	// httpClient performs all requests. Built from the tuned transport
	// unless a test injects its own.
	httpClient *http.Client

	// userAgent identifies this tool on every request.
	userAgent string

	// timeout is the per-request timeout.
	timeout time.Duration

	// proxyAddress is an optional SOCKS5 proxy in "host:port" format.
	proxyAddress string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithSOCKSProxy routes all requests through a SOCKS5 proxy at the given
// "host:port" address. Useful when the service is only reachable through
// a bastion.
func WithSOCKSProxy(address string) ClientOption {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the analytics service at endpoint.
//
// The endpoint must be an absolute http or https URL. The constructor
// validates the URL but performs no network I/O; call Ping to verify the
// service is reachable.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		endpoint:  u,
		userAgent: config.DefaultUserAgent,
		timeout:   config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient, err = c.newHTTPClient()
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// newHTTPClient builds the tuned HTTP client.
//
// Design decisions:
// - TLS verification stays on; the service presents a normal certificate
// - A cookie jar keeps any session cookies the service sets mid-session
// - Redirect limit is 10 to prevent loops while allowing normal redirects
// - The pool is small because we only ever talk to one host
func (c *Client) newHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	if c.proxyAddress != "" {
		dialer, err := socksDialer(c.proxyAddress)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	// cookiejar.New only fails with invalid options, and we pass none.
	jar, _ := cookiejar.New(nil) //nolint:errcheck

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: c.userAgent,
		},
		Timeout: c.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// socksDialer creates a SOCKS5 dialer for the given "host:port" address.
// No authentication: bastion SOCKS ports typically run unauthenticated on
// loopback.
func socksDialer(address string) (proxy.Dialer, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return nil, fmt.Errorf("invalid SOCKS5 proxy address %q: expected host:port", address)
	}
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return dialer, nil
}

// Endpoint returns the configured service base URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// newRequest builds a request against the service with the session
// attached. A zero session attaches nothing, which is what login and
// health checks want.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, sess session.Session, body io.Reader) (*http.Request, error) {
	u := c.endpoint.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}
	if sess.Cookie != "" {
		req.Header.Set("Cookie", sess.Cookie)
	}
	return req, nil
}

// Ping verifies the service is reachable. A 401 counts as reachable: the
// health endpoint may sit behind auth, and reachability is all we are
// checking here.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, healthPath, nil, session.Session{}, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analytics service unreachable: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusUnauthorized:
		return nil
	default:
		return classifyStatus(resp)
	}
}

// headerInjectingTransport wraps an http.RoundTripper to stamp static
// headers onto every request, including redirects.
//
// Design decision: We inject via a RoundTripper rather than setting
// headers on each request so the User-Agent also survives redirects,
// which re-issue requests outside our request builder.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(clone)
}
