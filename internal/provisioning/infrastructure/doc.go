// Package infrastructure turns an external provisioning engine into the
// typed outputs the rest of the pipeline consumes.
//
// The Adapter calls its Engine exactly once and validates the flat output
// map. HetznerEngine is the engine used by edgerun: it creates the node on
// Hetzner Cloud and the artifact bucket on S3 and derives the Greengrass
// identity. Teardown removes what the engine created.
package infrastructure
