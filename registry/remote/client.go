// Package remote implements the upstream client of remote repositories.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mavenhub/registry/configuration"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/mavenhub/registry/version"
	"golang.org/x/time/rate"
)

const (
	// OriginatedHeader lists the nodes a request went through. A node
	// receiving a request carrying its own id is part of a resolution loop.
	OriginatedHeader = "X-Registry-Originated"

	defaultTimeout         = 15 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

var errUnexpectedStatus = errors.New("unexpected upstream response status")

// Client talks to the upstream server of a remote repository.
type Client struct {
	key        string
	base       *url.URL
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	nodeID     string
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

// WithNodeID sets the id sent in the OriginatedHeader.
func WithNodeID(id string) Option {
	return func(client *Client) {
		client.nodeID = id
	}
}

// WithBackOff sets the retry schedule of lookups.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(client *Client) {
		client.newBackOff = fn
	}
}

// New returns a client for the upstream of config.
func New(config configuration.RemoteRepository, opts ...Option) (*Client, error) {
	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing url of remote repository %q: %w", config.Key, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote repository %q: unsupported url scheme %q", config.Key, base.Scheme)
	}

	timeout := config.SocketTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if config.MaxRequestsPerSecond > 0 {
		limit = rate.Limit(config.MaxRequestsPerSecond)
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	c := &Client{
		key:        config.Key,
		base:       base,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: maxRetries,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	b.MaxInterval = defaultMaxInterval
	return b
}

func (c *Client) url(p string) string {
	u := *c.base
	u.Path = path.Join("/", c.base.Path, p)
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, p string) (*http.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(p), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "registry/"+version.Version)
	if c.nodeID != "" {
		req.Header.Set(OriginatedHeader, c.nodeID)
	}
	return req, nil
}

// Head implements repository.Upstream. Server errors are retried, a missing
// item is reported as not found.
func (c *Client) Head(ctx context.Context, p string) (repository.UpstreamInfo, error) {
	log := dcontext.GetLoggerWithFields(ctx, map[interface{}]interface{}{
		"repository": c.key,
		"path":       p,
	})

	var info repository.UpstreamInfo
	op := func() error {
		req, err := c.newRequest(ctx, http.MethodHead, p)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		report(c.key, http.MethodHead, resp, err)
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			info = upstreamInfo(resp)
			return nil
		case resp.StatusCode == http.StatusNotFound:
			info = repository.UpstreamInfo{}
			return nil
		case retryable(resp.StatusCode):
			return fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status)
		default:
			return backoff.Permanent(fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status))
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	notify := func(err error, d time.Duration) {
		log.WithError(err).WithField("backoff_duration", d.String()).Info("retrying upstream lookup")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return repository.UpstreamInfo{}, fmt.Errorf("looking up %s in %q: %w", p, c.key, err)
	}

	return info, nil
}

// Get implements repository.Upstream.
func (c *Client) Get(ctx context.Context, p string) (io.ReadCloser, repository.UpstreamInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, p)
	if err != nil {
		return nil, repository.UpstreamInfo{}, err
	}

	resp, err := c.http.Do(req)
	report(c.key, http.MethodGet, resp, err)
	if err != nil {
		return nil, repository.UpstreamInfo{}, fmt.Errorf("fetching %s from %q: %w", p, c.key, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, upstreamInfo(resp), nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, repository.UpstreamInfo{}, fmt.Errorf("fetching %s from %q: %w", p, c.key, repository.ErrResourceNotFound)
	default:
		resp.Body.Close()
		return nil, repository.UpstreamInfo{}, fmt.Errorf("fetching %s from %q: %w: %s", p, c.key, errUnexpectedStatus, resp.Status)
	}
}

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func retryable(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func upstreamInfo(resp *http.Response) repository.UpstreamInfo {
	info := repository.UpstreamInfo{Found: true}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			info.LastModified = t.UTC()
		}
	}
	if resp.ContentLength > 0 {
		info.Size = resp.ContentLength
	}
	return info
}
