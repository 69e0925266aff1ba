// Package handlers implements the business logic behind the CLI commands.
//
// Each handler loads the configuration, builds the platform clients and
// runs one workflow. Clients are created through package-level factory
// variables so tests can substitute fakes.
package handlers
