// Package client provides a bounded outbound HTTP client.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	ErrPrivateBlocked   = errors.New("request to private address blocked")
	ErrResponseTooLarge = errors.New("response body too large")
	ErrRedirectBlocked  = errors.New("redirect blocked by policy")
	ErrHostUnresolvable = errors.New("host could not be resolved")
)

// Config bounds outbound requests.
type Config struct {
	// TimeoutMS bounds a whole request including the body read.
	TimeoutMS int
	// ConnectTimeoutMS bounds the dial.
	ConnectTimeoutMS int
	// MaxResponseBytes bounds bodies read through ReadBody.
	MaxResponseBytes int64
	// BlockPrivate refuses loopback, private and link-local targets.
	// Off by default: the backend usually runs next to the client.
	BlockPrivate       bool
	InsecureSkipVerify bool
}

// ApplyDefaults fills unset limits.
func (c *Config) ApplyDefaults() {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 10000
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 2000
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 1 << 20
	}
}

// Resolver abstracts DNS resolution for testing.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Client is an HTTP client that never follows redirects, ignores proxy
// environment variables and bounds response sizes.
type Client struct {
	cfg        Config
	httpClient *http.Client
	resolver   Resolver
}

// New creates a client. A nil cfg uses defaults.
func New(cfg *Config) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.ApplyDefaults()

	cl := &Client{cfg: c}
	dialer := &net.Dialer{Timeout: time.Duration(c.ConnectTimeoutMS) * time.Millisecond}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if c.BlockPrivate {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					host = addr
				}
				if err := cl.checkHost(ctx, host); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	cl.httpClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(c.TimeoutMS) * time.Millisecond,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return cl
}

// SetResolver sets a custom DNS resolver (for testing).
func (c *Client) SetResolver(r Resolver) {
	c.resolver = r
}

func (c *Client) getResolver() Resolver {
	if c.resolver != nil {
		return c.resolver
	}
	return net.DefaultResolver
}

// checkHost rejects hosts that are or resolve to non-public addresses.
func (c *Client) checkHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	lower := strings.ToLower(host)
	if lower == "localhost" || lower == "localhost.localdomain" {
		return fmt.Errorf("%w: localhost", ErrPrivateBlocked)
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isPublicIP(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateBlocked, ip)
		}
		return nil
	}

	addrs, err := c.getResolver().LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}
	for _, a := range addrs {
		if !isPublicIP(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateBlocked, host, a.IP)
		}
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast())
}

// Do performs req. A 3xx response is closed and reported as
// ErrRedirectBlocked: writes must reach the configured host or fail.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.cfg.BlockPrivate {
		if err := c.checkHost(req.Context(), req.URL.Hostname()); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.StatusCode != http.StatusNotModified {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: received %d", ErrRedirectBlocked, resp.StatusCode)
	}
	return resp, nil
}

// ReadBody reads and closes resp.Body, failing past MaxResponseBytes.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// IsBlocked reports whether err came from the private-address guard.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrPrivateBlocked) || errors.Is(err, ErrHostUnresolvable)
}

// ContextClient adapts Client to the context-first HTTPClient interface.
type ContextClient struct {
	client *Client
}

// NewContextClient creates a ContextClient adapter.
func NewContextClient(c *Client) *ContextClient {
	return &ContextClient{client: c}
}

// Do performs an HTTP request, using the provided context.
func (c *ContextClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(ctx))
}
