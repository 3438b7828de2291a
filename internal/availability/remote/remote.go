// Package remote implements availability.SyncAdapter against a
// PostgREST-style profiles resource over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	httpclient "github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

var (
	// ErrNotFound is returned when the backend has no row for the user.
	// It wraps availability.ErrNoRecord.
	ErrNotFound = fmt.Errorf("remote: %w", availability.ErrNoRecord)

	ErrUnauthorized = errors.New("remote: unauthorized")
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %d: %s", e.Code, e.Body)
}

// Config configures the adapter.
type Config struct {
	// BaseURL is the backend origin, e.g. http://localhost:8080.
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// AttemptTimeout bounds a single request attempt.
	AttemptTimeout time.Duration
	// MaxTries bounds attempts per logical read or write.
	MaxTries uint
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
}

// Client talks to /rest/v1/profiles and /api/auth/login.
type Client struct {
	cfg  Config
	base *url.URL
	hc   *httpclient.Client
	doer httpclient.HTTPClient
	log  *slog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client. hc may be nil to use a default bounded client.
func New(cfg Config, hc *httpclient.Client, log *slog.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", cfg.BaseURL)
	}
	if hc == nil {
		hc = httpclient.New(nil)
	}
	return &Client{
		cfg:  cfg,
		base: base,
		hc:   hc,
		doer: httpclient.NewContextClient(hc),
		log:  logutil.NoopIfNil(log),
	}, nil
}

// SetToken sets the bearer token used for row access.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type row struct {
	Status          string  `json:"status"`
	StatusExpiresAt *string `json:"status_expires_at"`
}

// ReadStatus implements availability.Reader.
func (c *Client) ReadStatus(ctx context.Context, userID string) (availability.Record, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "status,status_expires_at")

	rows, err := retry(ctx, c, "read", func(ctx context.Context) ([]row, error) {
		body, err := c.send(ctx, http.MethodGet, "/rest/v1/profiles", q, nil, nil)
		if err != nil {
			return nil, err
		}
		var rows []row
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("remote: decode profiles: %w", err))
		}
		return rows, nil
	})
	if err != nil {
		return availability.Record{}, err
	}
	if len(rows) == 0 {
		return availability.Record{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return availability.Record{
		UserID:    userID,
		Status:    availability.ParseWireStatus(rows[0].Status),
		ExpiresAt: availability.ExpiryFromPtr(rows[0].StatusExpiresAt),
	}, nil
}

// WriteStatus implements availability.Writer. Status and expiry are sent in
// one PATCH.
func (c *Client) WriteStatus(ctx context.Context, userID string, rec availability.Record) error {
	payload, err := json.Marshal(row{Status: rec.Status.Wire(), StatusExpiresAt: rec.ExpiresAt.Ptr()})
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("id", "eq."+userID)
	hdr := http.Header{"Prefer": []string{"return=minimal"}}

	_, err = retry(ctx, c, "write", func(ctx context.Context) (struct{}, error) {
		_, err := c.send(ctx, http.MethodPatch, "/rest/v1/profiles", q, payload, hdr)
		return struct{}{}, err
	})
	return err
}

// LoginResult is the session returned by Login.
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	} `json:"user"`
}

// Login exchanges credentials for a session token and keeps it for later
// calls. Logins are not retried.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	body, err := c.send(ctx, http.MethodPost, "/api/auth/login", nil, payload, nil)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}
	var res LoginResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("remote: decode login: %w", err)
	}
	if res.Token == "" {
		return nil, fmt.Errorf("remote: login returned no token")
	}
	c.SetToken(res.Token)
	return &res, nil
}

// send performs one attempt. 4xx responses come back as permanent errors.
func (c *Client) send(ctx context.Context, method, path string, q url.Values, body []byte, hdr http.Header) ([]byte, error) {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		if httpclient.IsBlocked(err) || errors.Is(err, httpclient.ErrRedirectBlocked) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	data, err := c.hc.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(data))))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))})
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
}

// retry runs op with a per-attempt timeout and exponential backoff.
func retry[T any](ctx context.Context, c *Client, what string, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval

	return backoff.Retry(ctx, func() (T, error) {
		actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
		return op(actx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("remote request failed, retrying", "op", what, "error", err, "retry_in", next)
		}),
	)
}

var _ availability.SyncAdapter = (*Client)(nil)
