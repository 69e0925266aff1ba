// Package ssh provides an SSH client for executing commands on the compute node.
//
// The readiness waiter uses [Client.Probe] and [Client.Run] for single-shot,
// side-effect-free checks; the remote installer uses [Client.Execute], which
// retries the connection but never the command. Remote non-zero exits surface
// as [*ExitError] so callers can tell a failed command from an unreachable host.
package ssh
