package naming

import "fmt"

func Server(prefix string) string {
	return fmt.Sprintf("%s-node", prefix)
}

func SSHKey(prefix string) string {
	return fmt.Sprintf("%s-key", prefix)
}

func Firewall(prefix string) string {
	return fmt.Sprintf("%s-ssh", prefix)
}

// Bucket returns the default artifact bucket name. S3 bucket names are
// global, so the account ID is appended when known.
func Bucket(prefix, accountID string) string {
	if accountID == "" {
		return fmt.Sprintf("%s-gg-artifacts", prefix)
	}
	return fmt.Sprintf("%s-gg-artifacts-%s", prefix, accountID)
}

func Thing(prefix string) string {
	return fmt.Sprintf("%s-core", prefix)
}

func ThingGroup(prefix string) string {
	return fmt.Sprintf("%s-group", prefix)
}

func RoleAlias(prefix string) string {
	return fmt.Sprintf("%s-token-exchange-role-alias", prefix)
}

func Deployment(prefix string) string {
	return fmt.Sprintf("%s-deployment", prefix)
}
