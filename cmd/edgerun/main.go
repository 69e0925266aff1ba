// Package main is the entry point for the edgerun CLI.
//
// edgerun provisions an edge node on Hetzner Cloud, installs the AWS IoT
// Greengrass nucleus on it, publishes component bundles to S3 and deploys
// them through Greengrass, waiting until the device reports them healthy.
//
// Commands: init, run, status, destroy, version, completion.
//
// For detailed usage information, run:
//
//	edgerun --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/edgerun/cmd/edgerun/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
