// Package secrets resolves secret:// references through Google Secret
// Manager, with an in-process cache and a local fallback file for
// development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 5 * time.Minute
	refScheme           = "secret://"
)

// ErrSecretNotFound indicates the reference resolves to nothing anywhere.
var ErrSecretNotFound = errors.New("secrets: secret not found")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

// Fetcher resolves secret:// references with caching and a local fallback.
type Fetcher struct {
	client       secretManagerClient
	ownsClient   bool
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	cacheTTL     time.Duration

	fallbackOnce sync.Once
	fallbackVals map[string]string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFallbackPath overrides the local fallback file path.
func WithFallbackPath(path string) Option {
	return func(f *Fetcher) { f.fallbackPath = path }
}

// WithClient injects a Secret Manager client; used by tests.
func WithClient(client secretManagerClient) Option {
	return func(f *Fetcher) {
		f.client = client
		f.ownsClient = false
	}
}

// NewFetcher constructs a Fetcher bound to the given project.
func NewFetcher(ctx context.Context, projectID string, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		projectID:    strings.TrimSpace(projectID),
		fallbackPath: defaultFallbackPath,
		cacheTTL:     defaultCacheTTL,
		cache:        make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the underlying client when owned by the fetcher.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver. References take the form
// secret://NAME, secret://NAME#VERSION, or a full resource path
// secret://projects/P/secrets/NAME/versions/V.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, err := f.resourceName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	entry, hit := f.cache[name]
	f.mu.RUnlock()
	if hit && time.Since(entry.fetchedAt) < f.cacheTTL {
		return entry.value, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound || status.Code(err) == codes.PermissionDenied {
			if value, ok := f.fallback(ref); ok {
				f.logger.Warn("secret served from local fallback", zap.String("ref", ref))
				return value, nil
			}
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
		}
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	value := string(resp.GetPayload().GetData())

	f.mu.Lock()
	f.cache[name] = cacheEntry{value: value, fetchedAt: time.Now()}
	f.mu.Unlock()
	return value, nil
}

func (f *Fetcher) resourceName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, refScheme) {
		return "", fmt.Errorf("secrets: unsupported reference %q", ref)
	}
	body := strings.TrimPrefix(trimmed, refScheme)
	if body == "" {
		return "", fmt.Errorf("secrets: empty reference")
	}
	if strings.HasPrefix(body, "projects/") {
		return body, nil
	}

	name := body
	version := "latest"
	if idx := strings.LastIndex(body, "#"); idx >= 0 {
		name = body[:idx]
		if v := body[idx+1:]; v != "" {
			version = v
		}
	}
	if f.projectID == "" {
		return "", errors.New("secrets: project id is required for short references")
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), nil
}

// fallback serves values from the local fallback file, keyed by the short
// secret name.
func (f *Fetcher) fallback(ref string) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	body := strings.TrimPrefix(strings.TrimSpace(ref), refScheme)
	if idx := strings.LastIndex(body, "#"); idx >= 0 {
		body = body[:idx]
	}
	value, ok := f.fallbackVals[body]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		f.fallbackVals[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
}
