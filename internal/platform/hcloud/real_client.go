package hcloud

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/imamik/edgerun/internal/config"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// RealClient implements InfrastructureManager using the Hetzner Cloud API.
type RealClient struct {
	client     *hcloud.Client
	timeouts   *config.Timeouts
	httpClient *http.Client
	ipEndpoint string
}

// ClientOption configures a RealClient.
type ClientOption func(*RealClient)

// WithTimeouts sets custom timeouts for the client.
func WithTimeouts(t *config.Timeouts) ClientOption {
	return func(c *RealClient) {
		c.timeouts = t
	}
}

// WithHTTPClient sets a custom HTTP client for external requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *RealClient) {
		c.httpClient = hc
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *RealClient) {
		c.client = hc
	}
}

// WithPublicIPEndpoint changes where GetPublicIP asks for the caller's address.
func WithPublicIPEndpoint(url string) ClientOption {
	return func(c *RealClient) {
		c.ipEndpoint = url
	}
}

// NewRealClient creates a new RealClient with optional configuration.
func NewRealClient(token string, opts ...ClientOption) *RealClient {
	c := &RealClient{
		client:     hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("edgerun", "")),
		timeouts:   config.LoadTimeouts(),
		httpClient: http.DefaultClient,
		ipEndpoint: "https://ipv4.icanhazip.com",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPublicIP returns the public IPv4 address of the host running edgerun.
func (c *RealClient) GetPublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ipEndpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public IP lookup returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("public IP lookup returned %q", ip)
	}
	return ip, nil
}
