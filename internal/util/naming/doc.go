// Package naming derives resource names from the deployment prefix.
//
// Hetzner resources follow {prefix}-{type}. Greengrass identities (thing,
// thing group, role alias) follow the same pattern so a prefix uniquely
// identifies everything one edgerun deployment owns.
package naming
