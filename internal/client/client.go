// Package client holds the outbound HTTP client shared by the relay functions.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"
)

// Client is a HTTP client bound to a remote API
type Client struct {
	BaseURL    *url.URL
	HTTPClient *http.Client
	// Header is sent on every request
	Header http.Header
}

// New returns a Client for base. A zero timeout leaves requests unbounded.
func New(base string, timeout time.Duration, header http.Header) (*Client, error) {

	c := &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Header:     header,
	}
	if base == "" {
		return c, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("could not parse base URL: %w", err)
	}
	c.BaseURL = u

	return c, nil
}

// NewRequest creates a HTTP request against the base URL.
// An absolute path is used as is.
func (c *Client) NewRequest(ctx context.Context, method, path, contentType string, body []byte) (*http.Request, error) {

	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

func (c *Client) resolve(path string) (string, error) {

	p, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if c.BaseURL == nil {
		if !p.IsAbs() {
			return "", fmt.Errorf("relative path %q without a base URL", path)
		}
		return p.String(), nil
	}

	return c.BaseURL.ResolveReference(p).String(), nil
}

// Do makes a HTTP request
func (c *Client) Do(req *http.Request) (*http.Response, error) {

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, err
}

// Call builds and sends a request, returning the status and the drained body
func (c *Client) Call(ctx context.Context, method, path, contentType string, body []byte) (int, []byte, error) {

	req, err := c.NewRequest(ctx, method, path, contentType, body)
	if err != nil {
		return 0, nil, fmt.Errorf("could not make request: %w", err)
	}

	res, err := c.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("could not call %v: %w", req.URL.Host, err)
	}
	defer res.Body.Close()

	out, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("could not read response body: %w", err)
	}

	return res.StatusCode, out, nil
}

// OK reports whether status is 2xx
func OK(status int) bool {
	return status >= 200 && status < 300
}
