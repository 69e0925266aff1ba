// Package readiness waits until a freshly provisioned node accepts remote
// commands and has finished its own bootstrap.
package readiness
