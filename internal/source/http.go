package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 16 << 20
	defaultUserAgent    = "turfoo-ingest/1.0"
)

// Options tune the HTTP client shared by the feed source and the scraper.
type Options struct {
	Timeout      time.Duration
	Insecure     bool
	UserAgent    string
	MaxBodyBytes int64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	return o
}

func newHTTPClient(o Options) *http.Client {
	var base http.RoundTripper = http.DefaultTransport
	if o.Insecure {
		base = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}
	return &http.Client{
		Transport: base,
		Timeout:   o.Timeout,
	}
}

type getter struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

func newGetter(o Options) getter {
	o = o.withDefaults()
	return getter{
		client:    newHTTPClient(o),
		userAgent: o.UserAgent,
		maxBody:   o.MaxBodyBytes,
	}
}

// get performs a GET and returns the full body of a 2xx response. The body is
// always closed before returning.
func (g getter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > g.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", g.maxBody)
	}

	return body, nil
}
