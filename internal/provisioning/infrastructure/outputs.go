package infrastructure

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imamik/edgerun/internal/util/retry"
)

// Output keys of the provisioning contract.
const (
	KeyNodeAddress       = "node_address"
	KeyServerID          = "server_id"
	KeyServerName        = "server_name"
	KeySSHKeyName        = "ssh_key_name"
	KeySSHPrivateKeyPath = "ssh_private_key_path"
	KeyBucketName        = "bucket_name"
	KeyRoleAlias         = "role_alias"
	KeyThingName         = "thing_name"
	KeyTargetARN         = "target_arn"
)

// RequiredKeys lists every key an engine must return.
var RequiredKeys = []string{
	KeyNodeAddress,
	KeyServerID,
	KeyServerName,
	KeySSHKeyName,
	KeySSHPrivateKeyPath,
	KeyBucketName,
	KeyRoleAlias,
	KeyThingName,
	KeyTargetARN,
}

// Outputs are the resources one run provisioned. Every field is non-empty.
type Outputs struct {
	NodeAddress       string
	ServerID          string
	ServerName        string
	SSHKeyName        string
	SSHPrivateKeyPath string
	BucketName        string
	RoleAlias         string
	ThingName         string
	TargetARN         string
}

// MissingOutputsError names the keys an engine failed to return.
type MissingOutputsError struct {
	Keys []string
}

func (e *MissingOutputsError) Error() string {
	return fmt.Sprintf("provisioning outputs missing or empty: %s", strings.Join(e.Keys, ", "))
}

// OutputsFromMap validates raw and builds Outputs. Missing or empty keys
// are a fatal configuration error listing every missing key.
func OutputsFromMap(raw map[string]string) (*Outputs, error) {
	var missing []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(raw[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, retry.Fatal(&MissingOutputsError{Keys: missing})
	}
	return &Outputs{
		NodeAddress:       raw[KeyNodeAddress],
		ServerID:          raw[KeyServerID],
		ServerName:        raw[KeyServerName],
		SSHKeyName:        raw[KeySSHKeyName],
		SSHPrivateKeyPath: raw[KeySSHPrivateKeyPath],
		BucketName:        raw[KeyBucketName],
		RoleAlias:         raw[KeyRoleAlias],
		ThingName:         raw[KeyThingName],
		TargetARN:         raw[KeyTargetARN],
	}, nil
}

// Map returns the outputs in contract form.
func (o *Outputs) Map() map[string]string {
	return map[string]string{
		KeyNodeAddress:       o.NodeAddress,
		KeyServerID:          o.ServerID,
		KeyServerName:        o.ServerName,
		KeySSHKeyName:        o.SSHKeyName,
		KeySSHPrivateKeyPath: o.SSHPrivateKeyPath,
		KeyBucketName:        o.BucketName,
		KeyRoleAlias:         o.RoleAlias,
		KeyThingName:         o.ThingName,
		KeyTargetARN:         o.TargetARN,
	}
}
