// Package install runs an ordered list of installation steps on a node
// over its command channel and stops at the first failure.
//
// Steps that change group membership of a service user only take effect
// once the service restarts, so every [GroupChange] must be followed by a
// [RestartService] and a [VerifyActive] of the same service. [Validate]
// enforces this before anything runs.
package install
