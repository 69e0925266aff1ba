// Package s3 is the artifact store client.
//
// It wraps aws-sdk-go-v2 for the few calls the pipeline makes: the
// provisioner creates the bucket, the publisher uploads artifacts and
// recipes, and the teardown empties and deletes the bucket. Given an
// endpoint it talks path-style to an S3-compatible service such as
// Hetzner Object Storage.
package s3
