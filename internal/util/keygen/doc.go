// Package keygen generates and persists the RSA key pair used to reach the
// compute node over SSH.
//
// Keys are produced in PEM format (private) and OpenSSH authorized_keys
// format (public). [LoadOrGenerate] keeps the pair on disk so that a
// re-run or a teardown talks to the same node with the same identity.
package keygen
