package gcp

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// secretTimeout bounds a single AccessSecretVersion call.
const secretTimeout = 10 * time.Second

// ErrSecretNotFound is returned when the secret or version does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// SecretFetcher defines the interface for fetching secrets
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// secretAccessor is the part of the Secret Manager API client used here.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// SecretManagerClient reads persona credentials from GCP Secret Manager.
type SecretManagerClient struct {
	api       secretAccessor
	projectID string
}

var _ SecretFetcher = (*SecretManagerClient)(nil)

// NewSecretManagerClient opens a Secret Manager client. An empty projectID
// is resolved with ProjectID and used for bare secret names.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	if projectID == "" {
		var err error
		if projectID, err = ProjectID(ctx); err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}

	api, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManagerClient{api: api, projectID: projectID}, nil
}

// FetchSecret returns the trimmed payload of a secret version. secretPath
// may be a full version name, a secret name under projects/ (latest
// version), or a bare secret name in the client's project.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	if c.api == nil {
		return "", fmt.Errorf("secret manager client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, secretTimeout)
	defer cancel()

	name := secretVersionName(c.projectID, secretPath)
	resp, err := c.api.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("failed to access %s: %w", name, err)
	}

	payload := resp.GetPayload()
	if sum := payload.DataCrc32C; sum != nil {
		if got := int64(crc32.Checksum(payload.GetData(), crc32.MakeTable(crc32.Castagnoli))); got != *sum {
			return "", fmt.Errorf("secret %s failed checksum verification", name)
		}
	}
	return strings.TrimSpace(string(payload.GetData())), nil
}

// secretVersionName expands ref into a full version resource name.
func secretVersionName(project, ref string) string {
	switch {
	case strings.HasPrefix(ref, "projects/") && strings.Contains(ref, "/versions/"):
		return ref
	case strings.HasPrefix(ref, "projects/") && strings.Contains(ref, "/secrets/"):
		return ref + "/versions/latest"
	}
	if project == "" {
		project = "*"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, path.Base(ref))
}

// Close releases the API connection. Calling it twice is a no-op.
func (c *SecretManagerClient) Close() error {
	if c.api == nil {
		return nil
	}
	err := c.api.Close()
	c.api = nil
	return err
}

// ResolveSecret returns value when it is set, otherwise fetches secretPath.
// A nil fetcher or empty path with no value yields an empty string.
func ResolveSecret(ctx context.Context, fetcher SecretFetcher, value, secretPath string) (string, error) {
	if v := strings.TrimSpace(value); v != "" {
		return v, nil
	}
	if fetcher == nil || secretPath == "" {
		return "", nil
	}
	secret, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", path.Base(secretPath), err)
	}
	return secret, nil
}
