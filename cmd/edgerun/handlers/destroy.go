package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/platform/s3"
	"github.com/imamik/edgerun/internal/platform/sts"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
	"github.com/imamik/edgerun/internal/util/naming"
)

// DestroyOptions are the inputs of the destroy command.
type DestroyOptions struct {
	ConfigPath   string
	Overrides    config.Overrides
	DeleteBucket bool
	LogFormat    string
}

// bucketStore empties and deletes the artifact bucket and resolves the
// account that owns it.
type bucketStore interface {
	infrastructure.BucketCleaner
	infrastructure.IdentityResolver
}

type awsBucketStore struct {
	s3  *s3.Client
	sts *sts.Client
}

func (a awsBucketStore) EmptyBucket(ctx context.Context, bucket string) (int, error) {
	return a.s3.EmptyBucket(ctx, bucket)
}

func (a awsBucketStore) DeleteBucket(ctx context.Context, bucket string) error {
	return a.s3.DeleteBucket(ctx, bucket)
}

func (a awsBucketStore) CallerIdentity(ctx context.Context) (*sts.Identity, error) {
	return a.sts.CallerIdentity(ctx)
}

// newBucketStore creates the S3 and STS clients used by destroy.
// It can be replaced in tests.
var newBucketStore = func(ctx context.Context, cfg *config.Config) (bucketStore, error) {
	awsCfg, _, err := awsCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return awsBucketStore{
		s3:  s3.NewFromConfig(awsCfg, cfg.AWS.Endpoint),
		sts: sts.NewFromConfig(awsCfg),
	}, nil
}

// Destroy handles the destroy command.
//
// It removes the edge node, its firewall and SSH key, and optionally the
// artifact bucket. Greengrass registrations are left in place.
func Destroy(ctx context.Context, opts DestroyOptions) error {
	cfg, err := loadConfig(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	if err := requireToken(cfg); err != nil {
		return err
	}
	logger, err := newObserver(opts.LogFormat, stdout)
	if err != nil {
		return err
	}

	req := infrastructure.TeardownRequest{Prefix: cfg.Prefix, DeleteBucket: opts.DeleteBucket}
	var cleaner infrastructure.BucketCleaner
	if opts.DeleteBucket {
		store, err := newBucketStore(ctx, cfg)
		if err != nil {
			return err
		}
		req.Bucket, err = resolveBucket(ctx, cfg, store)
		if err != nil {
			return err
		}
		cleaner = store
	}

	infra := newInfraClient(cfg.HCloudToken, loadTimeouts())
	if err := infrastructure.NewTeardown(infra, cleaner, logger).Run(ctx, req); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}
	return nil
}

// resolveBucket returns the configured bucket or derives it from the
// account id the same way provisioning does.
func resolveBucket(ctx context.Context, cfg *config.Config, identity infrastructure.IdentityResolver) (string, error) {
	if cfg.AWS.Bucket != "" {
		return cfg.AWS.Bucket, nil
	}
	id, err := identity.CallerIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve AWS account: %w", err)
	}
	return naming.Bucket(cfg.Prefix, id.AccountID), nil
}
