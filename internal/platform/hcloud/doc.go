// Package hcloud wraps the Hetzner Cloud API for the single edge node
// edgerun provisions: its SSH key, its SSH firewall and the server itself.
//
// Every mutating call is idempotent. Ensure* methods return an existing
// resource of the same name instead of creating a second one, and Delete*
// methods succeed when the resource is already gone. Locked resources are
// retried with exponential backoff; invalid parameters fail immediately.
//
// The generic [DeleteOperation] and [EnsureOperation] types carry that
// behavior so each resource file only declares how to get, create and
// delete its resource.
package hcloud
