package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager. Values are cached for the
// process lifetime. When Secret Manager is unreachable or denies access, a local dotenv-style file
// keyed by secret name is consulted, which keeps local development working without credentials.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises the fetcher.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject sets the project used for references without one.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback file path.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = path }
}

// WithSecretManagerClient injects a client, primarily for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions appends options used when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher constructs a fetcher. A missing Secret Manager client is not fatal.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	f := &Fetcher{
		logger:       cfg.logger,
		projectID:    cfg.projectID,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}
	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve accepts secret://name, secret://name?version=3&project=p and
// secret://projects/p/secrets/name[/versions/v].
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	project := parsed.project
	if project == "" {
		project = f.projectID
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.secret, parsed.version)

	f.mu.RLock()
	value, ok := f.cache[resource]
	f.mu.RUnlock()
	if ok {
		return value, nil
	}

	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, resource)
		if err == nil {
			f.store(resource, value)
			return value, nil
		}
		if !isFallbackError(err) {
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.secret, err)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("secret", parsed.secret), zap.Error(err))
	}

	value, ok = f.lookupFallback(parsed.secret)
	if !ok {
		return "", fmt.Errorf("secrets: fallback value not found for %s", parsed.secret)
	}
	f.store(resource, value)
	return value, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, resource string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) store(resource, value string) {
	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()
}

func (f *Fetcher) lookupFallback(secret string) (string, bool) {
	f.fallbackOnce.Do(func() {
		if f.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("secrets: unable to read fallback file", zap.String("path", f.fallbackPath), zap.Error(err))
			}
			return
		}
		f.fallback = values
	})
	value, ok := f.fallback[secret]
	return value, ok
}

type parsedReference struct {
	secret  string
	version string
	project string
}

func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}

	parsed := parsedReference{
		version: strings.TrimSpace(u.Query().Get("version")),
		project: strings.TrimSpace(u.Query().Get("project")),
	}
	segments := strings.Split(strings.Trim(u.Host+u.Path, "/"), "/")
	switch {
	case len(segments) == 1:
		parsed.secret = segments[0]
	case len(segments) >= 4 && segments[0] == "projects" && segments[2] == "secrets":
		parsed.project = segments[1]
		parsed.secret = segments[3]
		if len(segments) == 6 && segments[4] == "versions" {
			parsed.version = segments[5]
		} else if len(segments) != 4 {
			return parsedReference{}, fmt.Errorf("secrets: malformed resource path in %q", ref)
		}
	default:
		return parsedReference{}, fmt.Errorf("secrets: malformed reference %q", ref)
	}
	if parsed.secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	if parsed.version == "" {
		parsed.version = "latest"
	}
	return parsed, nil
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable:
		return true
	}
	return false
}
