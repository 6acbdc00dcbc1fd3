// Package config loads typed configuration from defaults, an optional .env
// file, process environment, and Secret Manager references.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultHashPolicy   = "strict"
	defaultProvider     = "phonepe"
	defaultSiteURL      = "http://localhost:8080"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig holds Firestore connection settings.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// EasebuzzConfig holds the hash-signed gateway credentials.
type EasebuzzConfig struct {
	MerchantKey string
	Salt        string
}

// PhonePeConfig holds the signed-header gateway credentials.
type PhonePeConfig struct {
	WebhookUser    string
	WebhookPass    string
	MerchantSecret string
}

// ZohoPayConfig holds the payments-session gateway credentials.
type ZohoPayConfig struct {
	SigningKey string
}

// GatewaysConfig aggregates gateway credentials and the default provider
// used when the shared endpoint cannot detect one.
type GatewaysConfig struct {
	Easebuzz        EasebuzzConfig
	PhonePe         PhonePeConfig
	ZohoPay         ZohoPayConfig
	DefaultProvider string
}

// WebhooksConfig holds webhook processing policy.
type WebhooksConfig struct {
	// HashPolicy is "strict" or "lenient"; see the webhook service.
	HashPolicy string
}

// PubSubConfig holds the event publishing settings.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// StorefrontConfig holds the customer-facing URLs used by payment returns.
type StorefrontConfig struct {
	SiteURL string
}

// Config is the root configuration tree.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Gateways   GatewaysConfig
	Webhooks   WebhooksConfig
	PubSub     PubSubConfig
	Storefront StorefrontConfig
}

// SuccessReturnURL is the storefront page the success return redirects to.
func (c StorefrontConfig) SuccessReturnURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/payment-success"
}

// FailureReturnURL is the storefront page the failure return redirects to.
func (c StorefrontConfig) FailureReturnURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/payment-failure"
}

// SecretResolver resolves secret:// and sm:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

var errSecretResolverNotConfigured = errors.New("config: secret resolver not configured")

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// Option customises the loader.
type Option func(*loaderOptions)

// WithEnvFile overrides the .env path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects values that take precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables process environment lookups.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		if resolver != nil {
			o.secret = resolver
		}
	}
}

// Load builds the configuration. Lookup precedence: injected map, process
// environment, .env file, default.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", fmt.Errorf("%w: %s", errSecretResolverNotConfigured, ref)
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   stringWithDefault(lookup, "API_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Gateways: GatewaysConfig{
			Easebuzz: EasebuzzConfig{
				MerchantKey: stringWithDefault(lookup, "API_EASEBUZZ_MERCHANT_KEY", ""),
				Salt:        stringWithDefault(lookup, "API_EASEBUZZ_SALT", ""),
			},
			PhonePe: PhonePeConfig{
				WebhookUser:    stringWithDefault(lookup, "API_PHONEPE_WEBHOOK_USER", ""),
				WebhookPass:    stringWithDefault(lookup, "API_PHONEPE_WEBHOOK_PASS", ""),
				MerchantSecret: stringWithDefault(lookup, "API_PHONEPE_MERCHANT_SECRET", ""),
			},
			ZohoPay: ZohoPayConfig{
				SigningKey: stringWithDefault(lookup, "API_ZOHOPAY_SIGNING_KEY", ""),
			},
			DefaultProvider: strings.ToLower(stringWithDefault(lookup, "API_GATEWAY_DEFAULT_PROVIDER", defaultProvider)),
		},
		Webhooks: WebhooksConfig{
			HashPolicy: strings.ToLower(stringWithDefault(lookup, "API_WEBHOOK_HASH_POLICY", defaultHashPolicy)),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "API_PUBSUB_TOPIC", ""),
		},
		Storefront: StorefrontConfig{
			SiteURL: stringWithDefault(lookup, "API_STOREFRONT_SITE_URL", defaultSiteURL),
		},
	}

	if err := resolveSecrets(ctx, &cfg, options.secret); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveSecrets replaces secret references in credential fields with their
// resolved values.
func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	fields := []*string{
		&cfg.Gateways.Easebuzz.MerchantKey,
		&cfg.Gateways.Easebuzz.Salt,
		&cfg.Gateways.PhonePe.WebhookUser,
		&cfg.Gateways.PhonePe.WebhookPass,
		&cfg.Gateways.PhonePe.MerchantSecret,
		&cfg.Gateways.ZohoPay.SigningKey,
	}
	for _, field := range fields {
		if !isSecretReference(*field) {
			continue
		}
		resolved, err := resolver.ResolveSecret(ctx, normalizeSecretReference(*field))
		if err != nil {
			return fmt.Errorf("config: resolve secret: %w", err)
		}
		*field = resolved
	}
	return nil
}

func validate(cfg Config) error {
	switch cfg.Webhooks.HashPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("config: invalid API_WEBHOOK_HASH_POLICY %q", cfg.Webhooks.HashPolicy)
	}
	switch cfg.Gateways.DefaultProvider {
	case "easebuzz", "phonepe", "zohopay":
	default:
		return fmt.Errorf("config: invalid API_GATEWAY_DEFAULT_PROVIDER %q", cfg.Gateways.DefaultProvider)
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
