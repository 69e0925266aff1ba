// Package orchestration wires the edgerun stages into one pipeline.
//
// The stages live in the internal/provisioning subpackages and know nothing
// of each other. This package adapts each of them to a [provisioning.Phase],
// hands the output of one stage to the next through [provisioning.State],
// and reports progress to the run's observer.
//
// # Workflow
//
// A run executes the following stages in order:
//  1. Preflight - local configuration and file checks
//  2. Provision - edge node, firewall, SSH key and artifact bucket
//  3. Ready - wait until the node answers and has finished bootstrapping
//  4. Publish - upload and register every component bundle
//  5. Install - install the Greengrass nucleus as a system service
//  6. Deploy - submit the deployment to the control plane
//  7. Await - poll until the deployment is terminal and the device healthy
//
// # Usage
//
//	p := orchestration.New(orchestration.Dependencies{...})
//	err := p.Run(provisioning.NewContext(ctx, cfg, observer))
//
// Every stage is idempotent; re-running after a failure resumes the same
// deployment.
package orchestration
