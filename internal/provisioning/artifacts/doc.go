// Package artifacts publishes versioned component bundles: it renders the
// Greengrass recipe for the bundle, uploads the bundle files and the recipe
// to the artifact bucket, and registers the recipe with the control plane.
//
// Recipes are typed. Names, versions and artifact URIs are assigned as
// fields; a template token left anywhere in the rendered recipe is a
// configuration error.
package artifacts
