// Package retry provides exponential backoff retry logic for transient failures
// and bounded condition polling.
//
// [WithExponentialBackoff] retries an operation with configurable max attempts,
// initial delay, and maximum delay. It is used for Hetzner Cloud, S3 and
// Greengrass API calls that may fail transiently.
//
// [Poll] evaluates a condition at an interval until it holds or a hard
// ceiling elapses, returning a [TimeoutError] that records how long it
// waited and how often it polled.
package retry
