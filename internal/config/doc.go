// Package config defines the edgerun configuration model.
//
// A [Config] is loaded from edgerun.yaml, completed with defaults,
// overridden from the environment and command-line flags, and validated
// once. After that it is treated as immutable: every stage receives the
// values it needs explicitly and none of them reads process state.
//
// Wait ceilings and retry budgets are not part of the file. They are read
// from EDGERUN_* environment variables by [LoadTimeouts].
package config
