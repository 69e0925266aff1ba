// Package provisioning provides the shared types of the edge deployment
// pipeline.
//
// # Stages
//
//   - infrastructure/ - provisions the node, firewall, SSH key and bucket
//   - readiness/ - waits until the node accepts commands and finished booting
//   - artifacts/ - renders recipes, uploads bundles and registers components
//   - install/ - installs the Greengrass nucleus over SSH
//   - deployment/ - submits the deployment and waits for its outcome
//
// # Core Types
//
// Context carries configuration, state, observer, timeouts and clock.
// Phase defines a pipeline step with Name() and Provision() methods.
// State accumulates the typed result of every stage; each stage reads its
// predecessor's result through a Require method that fails if it is missing.
// StageError classifies a failure as configuration, transient, execution
// or deployment.
package provisioning
