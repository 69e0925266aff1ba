package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/im7mortal/kmutex"

	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/util/retry"
)

// RecipeObject is the key suffix of the rendered recipe next to the files.
const RecipeObject = "recipe.json"

// Store uploads objects. *s3.Client implements it.
type Store interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Registrar registers recipes with the control plane. *greengrass.Client
// implements it.
type Registrar interface {
	RegisterComponent(ctx context.Context, recipe []byte) (*greengrass.Registration, error)
	// LookupComponentVersion returns nil when the version is not registered.
	LookupComponentVersion(ctx context.Context, name, version string) (*greengrass.RegisteredVersion, error)
}

// Destination is where bundles are published.
type Destination struct {
	Bucket string
}

// PublishError reports an upload or registration that kept failing.
type PublishError struct {
	Component string
	Key       string
	Err       error
}

func (e *PublishError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("failed to publish %s: upload %s: %v", e.Component, e.Key, e.Err)
	}
	return fmt.Sprintf("failed to publish %s: %v", e.Component, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// DriftError reports bundle files that differ from the artifacts of an
// already registered version. Registered versions are immutable, so the
// bundle needs a new version.
type DriftError struct {
	Component string
	Files     []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("component %s is already registered with different artifacts (%s); publish a new version",
		e.Component, strings.Join(e.Files, ", "))
}

// Logger receives progress lines.
type Logger interface {
	Printf(format string, v ...any)
}

// Publisher publishes bundles. A version that is already registered is not
// uploaded again: its files must match the registered digests. Concurrent
// publishes of one version are serialized.
type Publisher struct {
	store     Store
	registrar Registrar
	registry  *Registry
	locks     *kmutex.Kmutex
	log       Logger

	maxRetries   int
	initialDelay time.Duration
	permanent    func(error) bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRetry bounds upload retries.
func WithRetry(maxRetries int, initialDelay time.Duration) Option {
	return func(p *Publisher) {
		p.maxRetries = maxRetries
		p.initialDelay = initialDelay
	}
}

// WithPermanentError marks upload errors that must not be retried, such as
// access denied.
func WithPermanentError(fn func(error) bool) Option {
	return func(p *Publisher) {
		p.permanent = fn
	}
}

// WithLogger sets where progress is logged.
func WithLogger(l Logger) Option {
	return func(p *Publisher) {
		p.log = l
	}
}

// NewPublisher creates a publisher recording into registry.
func NewPublisher(store Store, registrar Registrar, registry *Registry, opts ...Option) *Publisher {
	p := &Publisher{
		store:        store,
		registrar:    registrar,
		registry:     registry,
		locks:        kmutex.New(),
		log:          log.Default(),
		maxRetries:   5,
		initialDelay: time.Second,
		permanent:    func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the registry the publisher records into.
func (p *Publisher) Registry() *Registry {
	return p.registry
}

// Publish renders, uploads, registers and records b.
func (p *Publisher) Publish(ctx context.Context, b Bundle, dest Destination) (*PublishedComponent, error) {
	if dest.Bucket == "" {
		return nil, retry.Fatal(fmt.Errorf("component %s: no destination bucket", b.Key()))
	}

	key := b.Key()
	p.locks.Lock(key)
	defer p.locks.Unlock(key)

	if err := b.checkFiles(); err != nil {
		return nil, err
	}
	_, recipe, err := Render(b.Recipe, b, dest.Bucket)
	if err != nil {
		return nil, err
	}

	prefix := ObjectPrefix(b.Name, b.Version)
	contents := make([][]byte, len(b.Files))
	for i, f := range b.Files {
		data, err := os.ReadFile(f) // #nosec G304
		if err != nil {
			return nil, retry.Fatal(fmt.Errorf("component %s: artifact %s: %w", key, f, err))
		}
		contents[i] = data
	}

	existing, err := p.lookup(ctx, key, b)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := checkDigests(b, dest.Bucket, contents, existing); err != nil {
			return nil, err
		}
		p.log.Printf("[artifacts] %s already registered with matching artifacts, skipping upload", key)
		keys := make([]string, 0, len(b.Files)+1)
		for _, f := range b.Files {
			keys = append(keys, prefix+path.Base(f))
		}
		return p.record(b, recipe, append(keys, prefix+RecipeObject), dest.Bucket+"/"+prefix, existing.ARN), nil
	}

	p.log.Printf("[artifacts] Publishing %s to s3://%s/%s", key, dest.Bucket, prefix)
	keys := make([]string, 0, len(b.Files)+1)
	for i, f := range b.Files {
		objectKey := prefix + path.Base(f)
		if err := p.upload(ctx, key, dest.Bucket, objectKey, contents[i], contentType(f)); err != nil {
			return nil, err
		}
		keys = append(keys, objectKey)
	}
	recipeKey := prefix + RecipeObject
	if err := p.upload(ctx, key, dest.Bucket, recipeKey, recipe, "application/json"); err != nil {
		return nil, err
	}
	keys = append(keys, recipeKey)

	reg, err := p.register(ctx, key, recipe)
	if err != nil {
		return nil, err
	}
	if reg.Existing {
		p.log.Printf("[artifacts] %s already registered", key)
	} else {
		p.log.Printf("[artifacts] Registered %s (%s)", key, reg.ARN)
	}

	return p.record(b, recipe, keys, dest.Bucket+"/"+prefix, reg.ARN), nil
}

func (p *Publisher) record(b Bundle, recipe []byte, keys []string, prefix, arn string) *PublishedComponent {
	pc := &PublishedComponent{
		Name:       b.Name,
		Version:    b.Version,
		Recipe:     recipe,
		ObjectKeys: keys,
		Prefix:     prefix,
		ARN:        arn,
	}
	p.registry.Record(pc)
	return pc
}

func (p *Publisher) lookup(ctx context.Context, component string, b Bundle) (*greengrass.RegisteredVersion, error) {
	var rv *greengrass.RegisteredVersion
	err := retry.WithExponentialBackoff(ctx, func() error {
		v, err := p.registrar.LookupComponentVersion(ctx, b.Name, b.Version)
		if err != nil {
			if !greengrass.IsTransient(err) {
				return retry.Fatal(err)
			}
			return err
		}
		rv = v
		return nil
	}, retry.WithMaxRetries(p.maxRetries), retry.WithInitialDelay(p.initialDelay))
	if err != nil {
		return nil, &PublishError{Component: component, Err: err}
	}
	return rv, nil
}

// checkDigests compares each bundle file with the digest recorded for its
// URI in the registered version. A file without a recorded digest counts as
// changed.
func checkDigests(b Bundle, bucket string, contents [][]byte, rv *greengrass.RegisteredVersion) error {
	var changed []string
	for i, f := range b.Files {
		sum := sha256.Sum256(contents[i])
		want, ok := rv.Digests[ArtifactURI(bucket, b.Name, b.Version, f)]
		if !ok || want != base64.StdEncoding.EncodeToString(sum[:]) {
			changed = append(changed, path.Base(f))
		}
	}
	if len(changed) > 0 {
		return retry.Fatal(&DriftError{Component: b.Key(), Files: changed})
	}
	return nil
}

func (p *Publisher) upload(ctx context.Context, component, bucket, key string, data []byte, ct string) error {
	err := retry.WithExponentialBackoff(ctx, func() error {
		err := p.store.PutObject(ctx, bucket, key, data, ct)
		if err != nil && p.permanent(err) {
			return retry.Fatal(err)
		}
		return err
	}, retry.WithMaxRetries(p.maxRetries), retry.WithInitialDelay(p.initialDelay))
	if err != nil {
		return &PublishError{Component: component, Key: key, Err: err}
	}
	return nil
}

func (p *Publisher) register(ctx context.Context, component string, recipe []byte) (*greengrass.Registration, error) {
	var reg *greengrass.Registration
	err := retry.WithExponentialBackoff(ctx, func() error {
		r, err := p.registrar.RegisterComponent(ctx, recipe)
		if err != nil {
			if !greengrass.IsTransient(err) {
				return retry.Fatal(err)
			}
			return err
		}
		reg = r
		return nil
	}, retry.WithMaxRetries(p.maxRetries), retry.WithInitialDelay(p.initialDelay))
	if err != nil {
		var fatal *retry.FatalError
		if errors.As(err, &fatal) && greengrass.IsValidation(err) {
			return nil, retry.Fatal(&TemplateError{Component: component, Reason: "rejected by control plane: " + fatal.Err.Error()})
		}
		return nil, &PublishError{Component: component, Err: err}
	}
	return reg, nil
}

func contentType(file string) string {
	switch path.Ext(file) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".zip":
		return "application/zip"
	case ".py", ".sh", ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
