package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log"

	hcloud_internal "github.com/imamik/edgerun/internal/platform/hcloud"
	"github.com/imamik/edgerun/internal/util/labels"
	"github.com/imamik/edgerun/internal/util/naming"
)

// BucketCleaner empties and removes the artifact bucket.
type BucketCleaner interface {
	EmptyBucket(ctx context.Context, bucketName string) (int, error)
	DeleteBucket(ctx context.Context, bucketName string) error
}

// TeardownRequest names what to remove.
type TeardownRequest struct {
	Prefix string
	// Bucket is deleted only when DeleteBucket is set.
	Bucket       string
	DeleteBucket bool
}

// Teardown removes the resources HetznerEngine created. It is a separate,
// explicit operation; the pipeline never tears down on failure.
type Teardown struct {
	infra hcloud_internal.InfrastructureManager
	store BucketCleaner
	log   Logger
}

// NewTeardown creates a teardown. store may be nil when buckets are kept.
func NewTeardown(infra hcloud_internal.InfrastructureManager, store BucketCleaner, logger Logger) *Teardown {
	if logger == nil {
		logger = log.Default()
	}
	return &Teardown{infra: infra, store: store, log: logger}
}

// Run deletes the server, firewall and SSH key by name, sweeps anything
// else carrying the deployment label, and optionally empties and deletes
// the bucket. It continues past failures and returns them joined.
func (t *Teardown) Run(ctx context.Context, req TeardownRequest) error {
	t.log.Printf("[destroy] Tearing down %s...", req.Prefix)

	var errs []error
	steps := []struct {
		kind string
		name string
		fn   func(context.Context, string) error
	}{
		{"server", naming.Server(req.Prefix), t.infra.DeleteServer},
		{"firewall", naming.Firewall(req.Prefix), t.infra.DeleteFirewall},
		{"ssh key", naming.SSHKey(req.Prefix), t.infra.DeleteSSHKey},
	}
	for _, s := range steps {
		if err := s.fn(ctx, s.name); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s %s: %w", s.kind, s.name, err))
			continue
		}
		t.log.Printf("[destroy] Deleted %s %s", s.kind, s.name)
	}

	if err := t.infra.CleanupByLabel(ctx, map[string]string{labels.KeyDeployment: req.Prefix}); err != nil {
		errs = append(errs, fmt.Errorf("failed to clean up labelled resources: %w", err))
	}

	if req.DeleteBucket && req.Bucket != "" {
		if err := t.deleteBucket(ctx, req.Bucket); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	t.log.Printf("[destroy] %s destroyed", req.Prefix)
	return nil
}

func (t *Teardown) deleteBucket(ctx context.Context, bucket string) error {
	if t.store == nil {
		return fmt.Errorf("cannot delete bucket %s: no object store configured", bucket)
	}
	n, err := t.store.EmptyBucket(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to empty bucket %s: %w", bucket, err)
	}
	if err := t.store.DeleteBucket(ctx, bucket); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}
	t.log.Printf("[destroy] Deleted bucket %s (%d objects)", bucket, n)
	return nil
}
