package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Client is the artifact store used by the publisher and the teardown.
type Client struct {
	s3     *s3.Client
	region string
	// custom is true for S3-compatible endpoints, which do not take a location constraint.
	custom bool
}

// NewFromConfig creates a client from a loaded AWS config. An empty endpoint
// targets AWS S3 itself.
func NewFromConfig(cfg aws.Config, endpoint string) *Client {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{s3: client, region: cfg.Region, custom: endpoint != ""}
}

// CreateBucket creates the bucket. A bucket we already own counts as created.
func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if !c.custom && c.region != "" && c.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}

	if _, err := c.s3.CreateBucket(ctx, in); err != nil && !hasCode(err, "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// PutObject uploads data to key, replacing any previous object.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := c.s3.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, bucket, err)
	}
	return nil
}

// EmptyBucket deletes every object in the bucket, one batch per listed page,
// and returns how many were removed. A missing bucket is already empty.
func (c *Client) EmptyBucket(ctx context.Context, bucket string) (int, error) {
	removed := 0
	pages := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return removed, nil
			}
			return removed, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			if obj.Key != nil {
				ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
			}
		}
		if len(ids) == 0 {
			continue
		}

		out, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(false)},
		})
		if err != nil {
			return removed, fmt.Errorf("failed to delete objects in bucket %s: %w", bucket, err)
		}
		removed += len(out.Deleted)
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return removed, fmt.Errorf("failed to delete %d objects in bucket %s, first %s: %s",
				len(out.Errors), bucket, aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return removed, nil
}

// DeleteBucket deletes an empty bucket. A missing bucket is not an error.
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := c.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}
	return nil
}

// IsPermanentError reports S3 errors that retrying cannot fix: missing
// buckets, rejected credentials and malformed requests.
func IsPermanentError(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	return hasCode(err, "AccessDenied", "NoSuchBucket", "InvalidBucketName", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "AllAccessDisabled", "InvalidArgument")
}

func isNotFound(err error) bool {
	var nsb *types.NoSuchBucket
	var nf *types.NotFound
	if errors.As(err, &nsb) || errors.As(err, &nf) {
		return true
	}
	return hasCode(err, "NotFound", "NoSuchBucket", "404")
}

// hasCode matches the API error code, which S3-compatible services return
// even when the SDK cannot map it to a typed error.
func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
