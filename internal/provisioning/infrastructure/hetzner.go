package infrastructure

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"gopkg.in/yaml.v3"

	hcloud_internal "github.com/imamik/edgerun/internal/platform/hcloud"
	"github.com/imamik/edgerun/internal/platform/sts"
	"github.com/imamik/edgerun/internal/util/keygen"
	"github.com/imamik/edgerun/internal/util/naming"
	"github.com/imamik/edgerun/internal/util/retry"
)

// BucketStore creates the artifact bucket.
type BucketStore interface {
	CreateBucket(ctx context.Context, bucketName string) error
}

// IdentityResolver returns the AWS identity edgerun runs as.
type IdentityResolver interface {
	CallerIdentity(ctx context.Context) (*sts.Identity, error)
}

// HetznerEngine provisions the edge node on Hetzner Cloud and the artifact
// bucket on S3.
type HetznerEngine struct {
	infra    hcloud_internal.InfrastructureManager
	store    BucketStore
	identity IdentityResolver
	log      Logger
	keyBits  int
}

// NewHetznerEngine creates the engine. A nil logger logs to the standard logger.
func NewHetznerEngine(infra hcloud_internal.InfrastructureManager, store BucketStore, identity IdentityResolver, logger Logger) *HetznerEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &HetznerEngine{
		infra:    infra,
		store:    store,
		identity: identity,
		log:      logger,
		keyBits:  keygen.DefaultBits,
	}
}

// KeyPath returns where the node private key of req is kept.
func KeyPath(req Request) string {
	return filepath.Join(req.StateDir, naming.SSHKey(req.Prefix))
}

// Apply implements Engine. Every step is idempotent: re-running against an
// existing deployment returns the same outputs.
func (e *HetznerEngine) Apply(ctx context.Context, req Request) (map[string]string, error) {
	if err := os.MkdirAll(req.StateDir, 0o700); err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to create state dir: %w", err))
	}

	keyPath := KeyPath(req)
	keys, created, err := keygen.LoadOrGenerate(keyPath, e.keyBits)
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to prepare node ssh key: %w", err))
	}
	if created {
		e.log.Printf("[infrastructure] Generated node SSH key %s", keyPath)
	}

	keyName := naming.SSHKey(req.Prefix)
	if _, err := e.infra.EnsureSSHKey(ctx, keyName, string(keys.PublicKey), req.Labels); err != nil {
		return nil, fmt.Errorf("failed to ensure ssh key: %w", err)
	}

	sources, err := e.sshSources(ctx, req.SSHSources)
	if err != nil {
		return nil, err
	}
	firewallName := naming.Firewall(req.Prefix)
	if _, err := e.infra.EnsureFirewall(ctx, firewallName, hcloud_internal.SSHFirewallRules(sources), req.Labels); err != nil {
		return nil, fmt.Errorf("failed to ensure firewall: %w", err)
	}

	userData, err := CloudInit()
	if err != nil {
		return nil, retry.Fatal(err)
	}
	serverName := req.ServerName()
	server, serverCreated, err := e.infra.EnsureServer(ctx, hcloud_internal.ServerCreateOpts{
		Name:       serverName,
		Image:      req.Image,
		ServerType: req.ServerType,
		Location:   req.Location,
		SSHKeys:    []string{keyName},
		Firewalls:  []string{firewallName},
		Labels:     req.Labels,
		UserData:   userData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure server: %w", err)
	}
	if serverCreated {
		e.log.Printf("[infrastructure] Created server %s (id %d)", serverName, server.ID)
	} else {
		e.log.Printf("[infrastructure] Server %s already exists (id %d)", serverName, server.ID)
	}

	address, err := e.infra.GetServerIP(ctx, serverName)
	if err != nil {
		return nil, fmt.Errorf("failed to get server address: %w", err)
	}

	id, err := e.identity.CallerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	bucket := req.Bucket
	if bucket == "" {
		bucket = naming.Bucket(req.Prefix, id.AccountID)
	}
	if err := e.store.CreateBucket(ctx, bucket); err != nil {
		return nil, err
	}
	e.log.Printf("[infrastructure] Artifact bucket %s ready", bucket)

	return map[string]string{
		KeyNodeAddress:       address,
		KeyServerID:          strconv.FormatInt(server.ID, 10),
		KeyServerName:        serverName,
		KeySSHKeyName:        keyName,
		KeySSHPrivateKeyPath: keyPath,
		KeyBucketName:        bucket,
		KeyRoleAlias:         req.RoleAlias,
		KeyThingName:         req.ThingName,
		KeyTargetARN:         ThingGroupARN(id.Partition, req.AWSRegion, id.AccountID, req.ThingGroup),
	}, nil
}

// sshSources parses configured CIDRs, or falls back to the caller's public
// address. When that lookup fails SSH is left open to the world.
func (e *HetznerEngine) sshSources(ctx context.Context, configured []string) ([]net.IPNet, error) {
	if len(configured) > 0 {
		nets := make([]net.IPNet, 0, len(configured))
		for _, cidr := range configured {
			_, n, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, retry.Fatal(fmt.Errorf("invalid ssh source %q: %w", cidr, err))
			}
			nets = append(nets, *n)
		}
		return nets, nil
	}

	ip, err := e.infra.GetPublicIP(ctx)
	if err != nil {
		e.log.Printf("[infrastructure] WARNING: could not determine public IP (%v), allowing SSH from anywhere", err)
		return nil, nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		e.log.Printf("[infrastructure] WARNING: public IP %q is not IPv4, allowing SSH from anywhere", ip)
		return nil, nil
	}
	return []net.IPNet{{IP: parsed.To4(), Mask: net.CIDRMask(32, 32)}}, nil
}

// ThingGroupARN builds the IoT thing-group ARN used as deployment target.
func ThingGroupARN(partition, region, accountID, group string) string {
	return arn.ARN{
		Partition: partition,
		Service:   "iot",
		Region:    region,
		AccountID: accountID,
		Resource:  "thinggroup/" + group,
	}.String()
}

type cloudConfig struct {
	PackageUpdate bool     `yaml:"package_update"`
	Packages      []string `yaml:"packages"`
	RunCmd        []string `yaml:"runcmd,omitempty"`
}

// CloudInit renders the node user data. cloud-init writes the boot-finished
// marker once it has run, which the readiness waiter watches for.
func CloudInit() (string, error) {
	data, err := yaml.Marshal(cloudConfig{
		PackageUpdate: true,
		Packages:      []string{"curl", "unzip", "default-jre-headless"},
		RunCmd:        []string{"systemctl enable --now ssh"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to render cloud-init: %w", err)
	}
	return "#cloud-config\n" + string(data), nil
}
