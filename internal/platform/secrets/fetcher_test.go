package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubClient struct {
	values map[string]string
	calls  int
}

func (s *stubClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubClient) Close() error { return nil }

func newTestFetcher(t *testing.T, client *stubClient, opts ...Option) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(context.Background(), "proj", append([]Option{WithClient(client)}, opts...)...)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return fetcher
}

func TestResolveSecretShortReference(t *testing.T) {
	client := &stubClient{values: map[string]string{
		"projects/proj/secrets/easebuzz-salt/versions/latest": "s3cret",
		"projects/proj/secrets/pinned/versions/7":             "v7",
	}}
	fetcher := newTestFetcher(t, client)

	value, err := fetcher.ResolveSecret(context.Background(), "secret://easebuzz-salt")
	if err != nil || value != "s3cret" {
		t.Fatalf("short ref: %q err=%v", value, err)
	}

	value, err = fetcher.ResolveSecret(context.Background(), "secret://pinned#7")
	if err != nil || value != "v7" {
		t.Fatalf("pinned ref: %q err=%v", value, err)
	}
}

func TestResolveSecretCaches(t *testing.T) {
	client := &stubClient{values: map[string]string{
		"projects/proj/secrets/key/versions/latest": "v",
	}}
	fetcher := newTestFetcher(t, client)

	for i := 0; i < 3; i++ {
		if _, err := fetcher.ResolveSecret(context.Background(), "secret://key"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected one backend call, got %d", client.calls)
	}
}

func TestResolveSecretFallbackFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local secrets\nmissing-key=from-file\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	fetcher := newTestFetcher(t, &stubClient{}, WithFallbackPath(path))

	value, err := fetcher.ResolveSecret(context.Background(), "secret://missing-key")
	if err != nil || value != "from-file" {
		t.Fatalf("fallback: %q err=%v", value, err)
	}

	if _, err := fetcher.ResolveSecret(context.Background(), "secret://unknown"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("unknown secret: want ErrSecretNotFound, got %v", err)
	}
}
