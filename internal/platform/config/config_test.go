package config

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("port = %s", cfg.Server.Port)
	}
	if cfg.Webhooks.HashPolicy != "strict" {
		t.Fatalf("hash policy must default strict, got %s", cfg.Webhooks.HashPolicy)
	}
	if cfg.Gateways.DefaultProvider != "phonepe" {
		t.Fatalf("default provider = %s", cfg.Gateways.DefaultProvider)
	}
	if cfg.Storefront.SuccessReturnURL() != "http://localhost:8080/payment-success" {
		t.Fatalf("success url = %s", cfg.Storefront.SuccessReturnURL())
	}
}

func TestLoadEnvMapPrecedence(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_SERVER_PORT":              "9090",
			"API_SERVER_READ_TIMEOUT":      "5s",
			"API_WEBHOOK_HASH_POLICY":      "lenient",
			"API_GATEWAY_DEFAULT_PROVIDER": "easebuzz",
			"API_EASEBUZZ_SALT":            "topsalt",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("server config not applied: %+v", cfg.Server)
	}
	if cfg.Webhooks.HashPolicy != "lenient" {
		t.Fatalf("hash policy = %s", cfg.Webhooks.HashPolicy)
	}
	if cfg.Gateways.Easebuzz.Salt != "topsalt" {
		t.Fatalf("salt not applied")
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_WEBHOOK_HASH_POLICY": "sometimes"}),
	)
	if err == nil {
		t.Fatalf("expected invalid policy error")
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/salt/versions/latest" {
			return "", fmt.Errorf("unexpected ref %s", ref)
		}
		return "resolved-salt", nil
	})
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_EASEBUZZ_SALT": "sm://projects/p/secrets/salt/versions/latest",
		}),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateways.Easebuzz.Salt != "resolved-salt" {
		t.Fatalf("secret not resolved: %s", cfg.Gateways.Easebuzz.Salt)
	}
}
