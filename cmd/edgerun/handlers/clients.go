package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/orchestration"
	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/platform/hcloud"
	"github.com/imamik/edgerun/internal/platform/s3"
	"github.com/imamik/edgerun/internal/platform/ssh"
	"github.com/imamik/edgerun/internal/platform/sts"
	"github.com/imamik/edgerun/internal/provisioning"
	"github.com/imamik/edgerun/internal/provisioning/infrastructure"
	"github.com/imamik/edgerun/internal/util/retry"
)

// Factory function variables for platform clients - can be replaced in tests.
var (
	// loadAWSConfig resolves AWS credentials and settings for region.
	loadAWSConfig = func(ctx context.Context, region string) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}

	// newInfraClient creates the Hetzner Cloud client.
	newInfraClient = func(token string, t *config.Timeouts) hcloud.InfrastructureManager {
		return hcloud.NewRealClient(token, hcloud.WithTimeouts(t))
	}

	// readFile reads the node private key.
	readFile = os.ReadFile
)

// awsCredentials resolves the AWS configuration and the static credentials
// exported to the node installer. Missing credentials are a configuration
// error.
func awsCredentials(ctx context.Context, cfg *config.Config) (aws.Config, aws.Credentials, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return aws.Config{}, aws.Credentials{}, retry.Fatal(fmt.Errorf("failed to load AWS configuration: %w", err))
	}
	if awsCfg.Credentials == nil {
		return aws.Config{}, aws.Credentials{}, retry.Fatal(fmt.Errorf("no AWS credentials configured"))
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Config{}, aws.Credentials{}, retry.Fatal(fmt.Errorf("failed to retrieve AWS credentials: %w", err))
	}
	return awsCfg, creds, nil
}

// newDependencies builds the real platform clients for cfg.
func newDependencies(ctx context.Context, cfg *config.Config, t *config.Timeouts, logger provisioning.Logger) (orchestration.Dependencies, error) {
	if err := requireToken(cfg); err != nil {
		return orchestration.Dependencies{}, retry.Fatal(err)
	}
	awsCfg, creds, err := awsCredentials(ctx, cfg)
	if err != nil {
		return orchestration.Dependencies{}, err
	}

	store := s3.NewFromConfig(awsCfg, cfg.AWS.Endpoint)
	gg := greengrass.NewFromConfig(awsCfg, "")
	engine := infrastructure.NewHetznerEngine(
		newInfraClient(cfg.HCloudToken, t),
		store,
		sts.NewFromConfig(awsCfg),
		logger,
	)

	return orchestration.Dependencies{
		Engine:              engine,
		Dial:                dialNode,
		Store:               store,
		Registrar:           gg,
		ControlPlane:        gg,
		Status:              gg,
		PermanentStoreError: s3.IsPermanentError,
		InstallEnv:          installEnv(creds, cfg.AWS.Region),
	}, nil
}

// installEnv is the environment the nucleus installer needs to provision
// the thing and its role alias.
func installEnv(creds aws.Credentials, region string) map[string]string {
	env := map[string]string{
		"AWS_ACCESS_KEY_ID":     creds.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": creds.SecretAccessKey,
		"AWS_REGION":            region,
	}
	if creds.SessionToken != "" {
		env["AWS_SESSION_TOKEN"] = creds.SessionToken
	}
	return env
}

// dialNode opens an SSH channel to the provisioned node.
func dialNode(out *infrastructure.Outputs, cfg *config.Config) (orchestration.Node, error) {
	key, err := readFile(out.SSHPrivateKeyPath)
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to read node key: %w", err))
	}
	client, err := ssh.NewClient(&ssh.Config{
		Host:       out.NodeAddress,
		Port:       cfg.Readiness.SSHPort,
		User:       cfg.Readiness.SSHUser,
		PrivateKey: key,
	})
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to create SSH client: %w", err))
	}
	return client, nil
}
