package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/imamik/edgerun/internal/util/retry"
)

// Template tokens that must never survive rendering.
const (
	TokenBucketName       = "{{BUCKET_NAME}}"
	TokenComponentName    = "{{COMPONENT_NAME}}"
	TokenComponentVersion = "{{COMPONENT_VERSION}}"
)

var templateTokens = []string{TokenBucketName, TokenComponentName, TokenComponentVersion}

// Recipe is a Greengrass v2 component recipe.
type Recipe struct {
	RecipeFormatVersion    string                         `json:"RecipeFormatVersion"`
	ComponentName          string                         `json:"ComponentName"`
	ComponentVersion       string                         `json:"ComponentVersion"`
	ComponentType          string                         `json:"ComponentType,omitempty"`
	ComponentDescription   string                         `json:"ComponentDescription,omitempty"`
	ComponentPublisher     string                         `json:"ComponentPublisher,omitempty"`
	ComponentConfiguration *ComponentConfiguration        `json:"ComponentConfiguration,omitempty"`
	ComponentDependencies  map[string]ComponentDependency `json:"ComponentDependencies,omitempty"`
	Manifests              []Manifest                     `json:"Manifests"`
	Lifecycle              map[string]any                 `json:"Lifecycle,omitempty"`
}

// ComponentConfiguration holds the default configuration of a component.
type ComponentConfiguration struct {
	DefaultConfiguration map[string]any `json:"DefaultConfiguration,omitempty"`
}

// ComponentDependency constrains another component.
type ComponentDependency struct {
	VersionRequirement string `json:"VersionRequirement,omitempty"`
	DependencyType     string `json:"DependencyType,omitempty"`
}

// Manifest is the per-platform part of a recipe.
type Manifest struct {
	Name      string            `json:"Name,omitempty"`
	Platform  map[string]string `json:"Platform,omitempty"`
	Lifecycle map[string]any    `json:"Lifecycle,omitempty"`
	Artifacts []Artifact        `json:"Artifacts,omitempty"`
}

// Artifact is a file the device downloads for a component.
type Artifact struct {
	URI        string      `json:"URI"`
	Unarchive  string      `json:"Unarchive,omitempty"`
	Permission *Permission `json:"Permission,omitempty"`
	Digest     string      `json:"Digest,omitempty"`
	Algorithm  string      `json:"Algorithm,omitempty"`
}

// Permission controls who may read or execute an artifact on the device.
type Permission struct {
	Read    string `json:"Read,omitempty"`
	Execute string `json:"Execute,omitempty"`
}

// TemplateError reports a recipe that cannot be rendered.
type TemplateError struct {
	Component string
	Reason    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("recipe for %s: %s", e.Component, e.Reason)
}

// ParseRecipe parses a YAML or JSON recipe template.
func ParseRecipe(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.UnmarshalStrict(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}
	return &r, nil
}

// LoadRecipe reads and parses a recipe template from path.
func LoadRecipe(p string) (*Recipe, error) {
	data, err := os.ReadFile(p) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe %s: %w", p, err)
	}
	r, err := ParseRecipe(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return r, nil
}

// ObjectPrefix returns the key prefix of a component version in the bucket.
func ObjectPrefix(name, version string) string {
	return name + "/" + version + "/"
}

// ArtifactURI returns the S3 URI of one bundle file.
func ArtifactURI(bucket, name, version, file string) string {
	return "s3://" + bucket + "/" + ObjectPrefix(name, version) + path.Base(file)
}

// Render returns a copy of tmpl for the bundle in bucket, as the recipe and
// its JSON encoding. Artifacts listed by the template are matched to bundle
// files by base name; a manifest without artifacts gets every bundle file.
// Any template token left afterwards is a fatal configuration error.
func Render(tmpl *Recipe, b Bundle, bucket string) (*Recipe, []byte, error) {
	if tmpl == nil {
		return nil, nil, retry.Fatal(&TemplateError{Component: b.Name, Reason: "no recipe"})
	}
	r, err := cloneRecipe(tmpl)
	if err != nil {
		return nil, nil, err
	}

	r.ComponentName = b.Name
	r.ComponentVersion = b.Version
	if r.RecipeFormatVersion == "" {
		r.RecipeFormatVersion = "2020-01-25"
	}

	files := make(map[string]bool, len(b.Files))
	for _, f := range b.Files {
		files[path.Base(f)] = true
	}

	if len(r.Manifests) == 0 {
		r.Manifests = []Manifest{{Platform: map[string]string{"os": "linux"}}}
	}
	for i := range r.Manifests {
		m := &r.Manifests[i]
		if len(m.Artifacts) == 0 {
			for _, f := range b.Files {
				m.Artifacts = append(m.Artifacts, Artifact{URI: ArtifactURI(bucket, b.Name, b.Version, f)})
			}
			continue
		}
		for j := range m.Artifacts {
			base := path.Base(m.Artifacts[j].URI)
			if !files[base] {
				return nil, nil, retry.Fatal(&TemplateError{
					Component: b.Name,
					Reason:    fmt.Sprintf("artifact %q is not part of the bundle", base),
				})
			}
			m.Artifacts[j].URI = ArtifactURI(bucket, b.Name, b.Version, base)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode recipe for %s: %w", b.Name, err)
	}
	if leftover := leftoverTokens(data); len(leftover) > 0 {
		return nil, nil, retry.Fatal(&TemplateError{
			Component: b.Name,
			Reason:    "unresolved template tokens " + strings.Join(leftover, ", "),
		})
	}
	return r, data, nil
}

func cloneRecipe(r *Recipe) (*Recipe, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to copy recipe: %w", err)
	}
	var out Recipe
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy recipe: %w", err)
	}
	return &out, nil
}

func leftoverTokens(data []byte) []string {
	var found []string
	s := string(data)
	for _, tok := range templateTokens {
		if strings.Contains(s, tok) {
			found = append(found, tok)
		}
	}
	return found
}
