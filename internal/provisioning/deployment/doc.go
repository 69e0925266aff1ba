// Package deployment submits component deployments to the Greengrass
// control plane and waits until they reach a terminal outcome on the
// device.
//
// The [Controller] validates a [Spec] locally, refuses overlapping
// deployments to one target and retries transient control-plane errors.
// The [Poller] observes the device's execution of a deployment and, once
// it succeeded, the health of the device and its components. A deployment
// only counts as succeeded when the device is healthy.
package deployment
