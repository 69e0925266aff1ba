// Package greengrass is the edgerun client for the AWS IoT Greengrass v2
// control plane.
//
// It registers component versions, submits thing-group deployments and
// reads back the effective deployment and health of a core device. Every
// call goes through a circuit breaker so that a struggling control plane
// fails fast instead of absorbing retries from the pipeline.
package greengrass
