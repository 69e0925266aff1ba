package greengrass

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2"
	"github.com/sony/gobreaker"
)

// API is the subset of the Greengrass v2 client used by edgerun.
type API interface {
	CreateComponentVersion(ctx context.Context, params *greengrassv2.CreateComponentVersionInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.CreateComponentVersionOutput, error)
	CreateDeployment(ctx context.Context, params *greengrassv2.CreateDeploymentInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.CreateDeploymentOutput, error)
	GetDeployment(ctx context.Context, params *greengrassv2.GetDeploymentInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.GetDeploymentOutput, error)
	ListEffectiveDeployments(ctx context.Context, params *greengrassv2.ListEffectiveDeploymentsInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.ListEffectiveDeploymentsOutput, error)
	GetCoreDevice(ctx context.Context, params *greengrassv2.GetCoreDeviceInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.GetCoreDeviceOutput, error)
	ListInstalledComponents(ctx context.Context, params *greengrassv2.ListInstalledComponentsInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.ListInstalledComponentsOutput, error)
	ListComponents(ctx context.Context, params *greengrassv2.ListComponentsInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.ListComponentsOutput, error)
	GetComponent(ctx context.Context, params *greengrassv2.GetComponentInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.GetComponentOutput, error)
}

// Client wraps the Greengrass v2 API behind a circuit breaker.
type Client struct {
	api     API
	breaker *gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*gobreaker.Settings)

// WithBreakerTimeout sets how long the breaker stays open before letting a
// trial request through.
func WithBreakerTimeout(d time.Duration) Option {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

// WithTripAfter sets the number of consecutive transient failures that open
// the breaker.
func WithTripAfter(n uint32) Option {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// NewClient loads the default AWS configuration for region and returns a
// client. A non-empty endpoint overrides the service endpoint.
func NewClient(ctx context.Context, region, endpoint string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewFromConfig(cfg, endpoint), nil
}

// NewFromConfig creates a client from a loaded AWS config.
func NewFromConfig(cfg aws.Config, endpoint string) *Client {
	api := greengrassv2.NewFromConfig(cfg, func(o *greengrassv2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(api)
}

// New wraps api. The breaker opens after three consecutive transient
// failures and stays open for 30 seconds. Only transient errors count as
// failures; a validation or conflict error says nothing about availability.
func New(api API, opts ...Option) *Client {
	settings := gobreaker.Settings{
		Name:        "greengrass",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &Client{api: api, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// BreakerState reports the breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// call runs fn through the breaker.
func call[T any](c *Client, fn func() (T, error)) (T, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// breakerAPI routes paginated list calls through the breaker.
type breakerAPI struct {
	c *Client
}

func (b breakerAPI) ListEffectiveDeployments(ctx context.Context, params *greengrassv2.ListEffectiveDeploymentsInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.ListEffectiveDeploymentsOutput, error) {
	return call(b.c, func() (*greengrassv2.ListEffectiveDeploymentsOutput, error) {
		return b.c.api.ListEffectiveDeployments(ctx, params, optFns...)
	})
}

func (b breakerAPI) ListInstalledComponents(ctx context.Context, params *greengrassv2.ListInstalledComponentsInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.ListInstalledComponentsOutput, error) {
	return call(b.c, func() (*greengrassv2.ListInstalledComponentsOutput, error) {
		return b.c.api.ListInstalledComponents(ctx, params, optFns...)
	})
}

func (b breakerAPI) ListComponents(ctx context.Context, params *greengrassv2.ListComponentsInput, optFns ...func(*greengrassv2.Options)) (*greengrassv2.ListComponentsOutput, error) {
	return call(b.c, func() (*greengrassv2.ListComponentsOutput, error) {
		return b.c.api.ListComponents(ctx, params, optFns...)
	})
}
