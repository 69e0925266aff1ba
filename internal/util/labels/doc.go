// Package labels provides consistent labeling for Hetzner Cloud resources.
//
// Every resource edgerun creates carries the deployment prefix and the
// managed-by label so teardown can find it again.
package labels
