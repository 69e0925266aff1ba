package artifacts

import (
	"fmt"
	"os"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/util/retry"
)

// Bundle is one component version ready to publish.
type Bundle struct {
	Name    string
	Version string
	// Files are local paths, uploaded in order.
	Files  []string
	Recipe *Recipe
}

// Key identifies the component version.
func (b Bundle) Key() string {
	return b.Name + "@" + b.Version
}

// BundleFromConfig loads the recipe template of comp.
func BundleFromConfig(comp config.Component) (Bundle, error) {
	recipe, err := LoadRecipe(comp.Recipe)
	if err != nil {
		return Bundle{}, retry.Fatal(err)
	}
	return Bundle{
		Name:    comp.Name,
		Version: comp.Version,
		Files:   append([]string(nil), comp.Artifacts...),
		Recipe:  recipe,
	}, nil
}

// checkFiles verifies every file exists and is a regular file.
func (b Bundle) checkFiles() error {
	for _, f := range b.Files {
		info, err := os.Stat(f)
		if err != nil {
			return retry.Fatal(fmt.Errorf("component %s: artifact %s: %w", b.Key(), f, err))
		}
		if !info.Mode().IsRegular() {
			return retry.Fatal(fmt.Errorf("component %s: artifact %s is not a regular file", b.Key(), f))
		}
	}
	return nil
}
