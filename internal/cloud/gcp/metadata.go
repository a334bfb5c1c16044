package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/compute/metadata"
)

// projectEnvVars are checked in order before asking the metadata server.
var projectEnvVars = []string{"ORACLE_GCP_PROJECT", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"}

// Replaced in tests. The metadata client honours GCE_METADATA_HOST and
// caches the project ID after the first successful lookup.
var (
	onGCE                 = metadata.OnGCE
	projectIDFromMetadata = metadata.NewClient(nil).ProjectIDWithContext
)

// IsRunningOnGCP reports whether the process runs on Google Cloud, which
// decides where structured logs are written.
func IsRunningOnGCP() bool {
	return onGCE()
}

// ProjectID returns the GCP project from the environment, falling back to
// the metadata server.
func ProjectID(ctx context.Context) (string, error) {
	for _, key := range projectEnvVars {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}

	id, err := projectIDFromMetadata(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read project from metadata server: %w", err)
	}
	if id = strings.TrimSpace(id); id == "" {
		return "", fmt.Errorf("metadata server returned an empty project ID")
	}
	return id, nil
}
