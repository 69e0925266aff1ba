// Package sts resolves the AWS identity edgerun runs as.
package sts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	awssts "github.com/aws/aws-sdk-go-v2/service/sts"
)

// API is the subset of the STS client used here.
type API interface {
	GetCallerIdentity(ctx context.Context, params *awssts.GetCallerIdentityInput, optFns ...func(*awssts.Options)) (*awssts.GetCallerIdentityOutput, error)
}

// Identity is the caller's AWS account and partition.
type Identity struct {
	AccountID string
	ARN       string
	Partition string
}

// Client looks up the caller identity.
type Client struct {
	api API
}

// New wraps api.
func New(api API) *Client {
	return &Client{api: api}
}

// NewFromConfig creates a client from a loaded AWS config.
func NewFromConfig(cfg aws.Config) *Client {
	return New(awssts.NewFromConfig(cfg))
}

// CallerIdentity returns the account and partition of the configured credentials.
func (c *Client) CallerIdentity(ctx context.Context) (*Identity, error) {
	out, err := c.api.GetCallerIdentity(ctx, &awssts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}
	id := &Identity{
		AccountID: aws.ToString(out.Account),
		ARN:       aws.ToString(out.Arn),
		Partition: "aws",
	}
	if id.AccountID == "" {
		return nil, fmt.Errorf("caller identity has no account")
	}
	if parsed, err := arn.Parse(id.ARN); err == nil {
		id.Partition = parsed.Partition
	}
	return id, nil
}
