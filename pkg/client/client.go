// Package client talks to a running pductl daemon over HTTP.
package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

type Option func(c *Client)

// Client is a wrapper around http.Client bound to one daemon.
type Client struct {
	*http.Client
	baseURL string
	token   string
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		Client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithCertPool(certPool *x509.CertPool) Option {
	// make sure we have a valid cert pool
	if certPool == nil {
		return func(*Client) {}
	}
	return func(c *Client) {
		c.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: certPool,
			},
			Dial: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout: 30 * time.Second,
		}
	}
}

// WithSecureTLS trusts the CA certificates in certPath. An unreadable
// file leaves the system roots in place.
func WithSecureTLS(certPath string) Option {
	cacert, err := os.ReadFile(certPath)
	if err != nil {
		return func(*Client) {}
	}
	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(cacert)
	return WithCertPool(certPool)
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s%s", c.baseURL, path)
}

func (c *Client) headers() HTTPHeader {
	return HTTPHeader{}.Authorization(c.token).ContentType("application/json")
}
