package labels

// Standard label keys for Hetzner Cloud resources.
const (
	// KeyDeployment identifies which edgerun deployment a resource belongs to
	KeyDeployment = "edgerun.io/deployment"

	// KeyRole identifies what the resource is for (edge-node)
	KeyRole = "edgerun.io/role"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "edgerun.io/managed-by"
)

const (
	RoleEdgeNode = "edge-node"

	ManagedByEdgerun = "edgerun"
)

// LabelBuilder provides a fluent interface for building resource labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the deployment prefix pre-set.
func NewLabelBuilder(prefix string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyDeployment: prefix,
			KeyManagedBy:  ManagedByEdgerun,
		},
	}
}

// WithRole adds a role label.
func (lb *LabelBuilder) WithRole(role string) *LabelBuilder {
	lb.labels[KeyRole] = role
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// SelectorForDeployment returns a label selector matching every resource of a deployment.
func SelectorForDeployment(prefix string) string {
	return KeyDeployment + "=" + prefix
}
