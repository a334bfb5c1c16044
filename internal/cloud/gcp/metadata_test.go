package gcp

import (
	"context"
	"errors"
	"testing"
)

func stubProjectID(t *testing.T, id string, err error) *int {
	t.Helper()
	calls := 0
	old := projectIDFromMetadata
	projectIDFromMetadata = func(context.Context) (string, error) {
		calls++
		return id, err
	}
	t.Cleanup(func() { projectIDFromMetadata = old })
	return &calls
}

func clearProjectEnv(t *testing.T) {
	t.Helper()
	for _, key := range projectEnvVars {
		t.Setenv(key, "")
	}
}

func TestProjectID_FromEnv(t *testing.T) {
	clearProjectEnv(t)
	calls := stubProjectID(t, "meta-project", nil)
	t.Setenv("GCP_PROJECT", "from-gcp-project")
	t.Setenv("ORACLE_GCP_PROJECT", "from-oracle")

	got, err := ProjectID(context.Background())
	if err != nil {
		t.Fatalf("ProjectID() error = %v", err)
	}
	if got != "from-oracle" {
		t.Errorf("ProjectID() = %q, want %q", got, "from-oracle")
	}
	if *calls != 0 {
		t.Error("metadata server consulted although the environment names a project")
	}
}

func TestProjectID_FromMetadata(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		err     error
		want    string
		wantErr bool
	}{
		{name: "project", id: "meta-project\n", want: "meta-project"},
		{name: "unavailable", err: errors.New("metadata: GCE metadata \"project/project-id\" not defined"), wantErr: true},
		{name: "empty", id: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProjectEnv(t)
			stubProjectID(t, tt.id, tt.err)

			got, err := ProjectID(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProjectID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ProjectID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRunningOnGCP(t *testing.T) {
	old := onGCE
	t.Cleanup(func() { onGCE = old })

	for _, want := range []bool{true, false} {
		onGCE = func() bool { return want }
		if got := IsRunningOnGCP(); got != want {
			t.Errorf("IsRunningOnGCP() = %v, want %v", got, want)
		}
	}
}
