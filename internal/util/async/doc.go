// Package async runs independent tasks concurrently and collects every
// failure.
//
// [Run] is used by the pipeline to publish component bundles side by side.
package async
