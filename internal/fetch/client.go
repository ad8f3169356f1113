/*
Package fetch performs outbound GET requests with bounded retry, linear
backoff and rotating client-identity headers.
*/
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/shanehull/insightpipe/internal/config"
)

// Doer is the subset of *http.Client the fetch client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError is returned when a URL could not be fetched after all retries,
// or when the server answered with a status that is not retried.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var errStatus = errors.New("unexpected status")

type Client struct {
	cfg     config.FetchConfig
	http    Doer
	log     logrus.FieldLogger
	retryOn map[int]bool

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithRand fixes the source used to pick the User-Agent.
func WithRand(r *rand.Rand) Option {
	return func(c *Client) { c.rnd = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

func New(cfg config.FetchConfig, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logrus.StandardLogger(),
		retryOn: make(map[int]bool, len(cfg.RetryStatuses)),
		rnd:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, s := range cfg.RetryStatuses {
		c.retryOn[s] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs url and returns the body. Extra headers override the defaults.
// Every failure is reported as a *FetchError.
func (c *Client) Fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	var (
		body       []byte
		lastStatus int
	)

	op := func() error {
		b, status, err := c.do(ctx, rawURL, headers)
		lastStatus = status
		if err == nil {
			body = b
			return nil
		}
		if status != 0 && !c.retryOn[status] {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.log.WithFields(logrus.Fields{"url": rawURL, "wait": wait}).Warnf("Retrying request: %v", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: c.cfg.BackoffStep}, uint64(c.cfg.MaxRetries)),
		ctx,
	)

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: lastStatus, Err: err}
	}
	return body, nil
}

// FetchDocument fetches url and parses the body as HTML. The returned
// document carries the request URL so relative links can be resolved.
func (c *Client) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := c.Fetch(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}

	doc := goquery.NewDocumentFromNode(root)
	if u, err := url.Parse(rawURL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func (c *Client) do(ctx context.Context, rawURL string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	for k, v := range c.defaultHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.WithField("url", rawURL).Warnf("Failed to close response body: %v", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, fmt.Errorf("%w %d", errStatus, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if c.cfg.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.cfg.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) defaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                c.userAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Upgrade-Insecure-Requests": "1",
	}
}

func (c *Client) userAgent() string {
	if len(c.cfg.UserAgents) == 0 {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.UserAgents[c.rnd.IntN(len(c.cfg.UserAgents))]
}

// linearBackOff waits step, 2*step, 3*step ... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
