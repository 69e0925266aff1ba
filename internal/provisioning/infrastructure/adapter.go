package infrastructure

import (
	"context"
	"fmt"
	"log"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/util/labels"
	"github.com/imamik/edgerun/internal/util/naming"
)

// Logger receives progress lines.
type Logger interface {
	Printf(format string, v ...any)
}

// Request describes the resources one run needs.
type Request struct {
	Prefix     string
	Location   string
	ServerType string
	Image      string

	// StateDir holds the node SSH key pair.
	StateDir string

	// SSHSources restricts SSH access to the node. Empty means the public
	// address of the caller.
	SSHSources []string

	// Bucket overrides the derived bucket name.
	Bucket    string
	AWSRegion string

	ThingName  string
	ThingGroup string
	RoleAlias  string

	Labels map[string]string
}

// RequestFromConfig builds the request for cfg.
func RequestFromConfig(cfg *config.Config) Request {
	return Request{
		Prefix:     cfg.Prefix,
		Location:   cfg.Region,
		ServerType: cfg.ServerType,
		Image:      cfg.Image,
		StateDir:   cfg.StateDir,
		SSHSources: cfg.Readiness.SSHSources,
		Bucket:     cfg.AWS.Bucket,
		AWSRegion:  cfg.AWS.Region,
		ThingName:  cfg.Greengrass.ThingName,
		ThingGroup: cfg.Greengrass.ThingGroup,
		RoleAlias:  cfg.Greengrass.RoleAlias,
		Labels:     labels.NewLabelBuilder(cfg.Prefix).WithRole(labels.RoleEdgeNode).Build(),
	}
}

// ServerName returns the node name for the request.
func (r Request) ServerName() string {
	return naming.Server(r.Prefix)
}

// Engine provisions the resources of a request and returns the flat
// output map. Engines own their retry policy.
type Engine interface {
	Apply(ctx context.Context, req Request) (map[string]string, error)
}

// Adapter runs an Engine and validates its outputs.
type Adapter struct {
	engine Engine
	log    Logger
}

// NewAdapter creates an adapter over engine. A nil logger logs to the
// standard logger.
func NewAdapter(engine Engine, logger Logger) *Adapter {
	if logger == nil {
		logger = log.Default()
	}
	return &Adapter{engine: engine, log: logger}
}

// Provision applies the engine once. The engine's own error is returned
// unchanged apart from wrapping; the adapter never retries.
func (a *Adapter) Provision(ctx context.Context, req Request) (*Outputs, error) {
	a.log.Printf("[infrastructure] Applying provisioning engine for %s...", req.Prefix)
	raw, err := a.engine.Apply(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provisioning engine failed: %w", err)
	}
	out, err := OutputsFromMap(raw)
	if err != nil {
		return nil, err
	}
	a.log.Printf("[infrastructure] Node %s (%s) ready for bootstrap, target %s", out.ServerName, out.NodeAddress, out.TargetARN)
	return out, nil
}
