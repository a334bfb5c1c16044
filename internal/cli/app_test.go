package cli

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"github.com/andywolf/oracle/internal/cloud/gcp"
	"github.com/andywolf/oracle/internal/config"
	"github.com/andywolf/oracle/internal/security"
	"github.com/andywolf/oracle/internal/state"
)

type mapSecrets struct {
	values map[string]string
	calls  []string
}

func (m *mapSecrets) FetchSecret(_ context.Context, path string) (string, error) {
	m.calls = append(m.calls, path)
	v, ok := m.values[path]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mapSecrets) Close() error { return nil }

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestBindEnv(t *testing.T) {
	t.Run("alias", func(t *testing.T) {
		t.Setenv("TWITTER_BEARER_TOKEN", "from-alias")
		v := viper.New()
		bindEnv(v)
		if got := v.GetString("platform.bearer_token"); got != "from-alias" {
			t.Errorf("platform.bearer_token = %q", got)
		}
	})

	t.Run("prefixed name wins over alias", func(t *testing.T) {
		t.Setenv("TWITTER_BEARER_TOKEN", "from-alias")
		t.Setenv("ORACLE_PLATFORM_BEARER_TOKEN", "from-prefix")
		v := viper.New()
		bindEnv(v)
		if got := v.GetString("platform.bearer_token"); got != "from-prefix" {
			t.Errorf("platform.bearer_token = %q", got)
		}
	})

	t.Run("automatic env for nested keys", func(t *testing.T) {
		t.Setenv("ORACLE_MONITOR_INTERVAL", "90s")
		v := viper.New()
		bindEnv(v)
		if got := v.GetString("monitor.interval"); got != "90s" {
			t.Errorf("monitor.interval = %q", got)
		}
	})
}

func TestApp_Resolve(t *testing.T) {
	secrets := &mapSecrets{values: map[string]string{
		"projects/p/secrets/bearer": "secret-from-manager",
	}}
	a := &app{sanitizer: security.NewLogSanitizer(), secrets: secrets}
	ctx := context.Background()

	got, err := a.resolve(ctx, "value-from-the-env", "projects/p/secrets/bearer")
	if err != nil || got != "value-from-the-env" {
		t.Fatalf("resolve() = %q, %v", got, err)
	}
	if len(secrets.calls) != 0 {
		t.Errorf("env value should skip the secret manager, calls = %v", secrets.calls)
	}

	got, err = a.resolve(ctx, "", "projects/p/secrets/bearer")
	if err != nil || got != "secret-from-manager" {
		t.Fatalf("resolve() = %q, %v", got, err)
	}

	line := a.sanitizer.Sanitize("token value-from-the-env and secret-from-manager")
	if strings.Contains(line, "value-from-the-env") || strings.Contains(line, "secret-from-manager") {
		t.Errorf("resolved secrets not redacted: %q", line)
	}

	if _, err := a.resolve(ctx, "", "projects/p/secrets/missing"); err == nil {
		t.Error("resolve() should fail for a missing secret")
	}
}

func TestLazySecrets(t *testing.T) {
	opened := 0
	s := &lazySecrets{newClient: func(context.Context) (*gcp.SecretManagerClient, error) {
		opened++
		return nil, errors.New("no credentials")
	}}

	for i := 0; i < 2; i++ {
		_, err := s.FetchSecret(context.Background(), "projects/p/secrets/x")
		if err == nil || !strings.Contains(err.Error(), "no credentials") {
			t.Errorf("FetchSecret() error = %v", err)
		}
	}
	if opened != 1 {
		t.Errorf("client opened %d times, want 1", opened)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLoadPersona(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Persona.Handle = "@digital_oracle"

	p, err := loadPersona(cfg)
	if err != nil {
		t.Fatalf("loadPersona() error = %v", err)
	}
	if p.Handle != "digital_oracle" {
		t.Errorf("Handle = %q", p.Handle)
	}

	cfg.Templates.Reply = "missing_template"
	if _, err := loadPersona(cfg); err == nil || !strings.Contains(err.Error(), "missing_template") {
		t.Errorf("loadPersona() error = %v, want missing template", err)
	}
}

func TestApp_StateStoreDefaultsToFile(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.State.Path = filepath.Join(t.TempDir(), "state.json")
	a := &app{cfg: cfg, sanitizer: security.NewLogSanitizer()}

	store, err := a.stateStore(context.Background())
	if err != nil {
		t.Fatalf("stateStore() error = %v", err)
	}
	fs, ok := store.(*state.FileStore)
	if !ok {
		t.Fatalf("store = %T, want *state.FileStore", store)
	}
	if fs.Path() != cfg.State.Path {
		t.Errorf("Path() = %q", fs.Path())
	}
}

func TestApp_TracerDefaultsToNoOp(t *testing.T) {
	cfg := defaultConfig(t)
	a := &app{cfg: cfg, sanitizer: security.NewLogSanitizer(), secrets: &mapSecrets{}, output: io.Discard}
	a.logger = a.componentLogger("test")

	tr := a.tracerFor(context.Background())
	if tr == nil {
		t.Fatal("tracerFor() returned nil")
	}
	if a.tracerFor(context.Background()) != tr {
		t.Error("tracer should be built once")
	}
	if len(a.closers) != 0 {
		t.Errorf("no-op tracer needs no closer, got %d", len(a.closers))
	}
}

func TestApp_CloseReverseOrder(t *testing.T) {
	var order []int
	a := &app{}
	for i := 1; i <= 3; i++ {
		n := i
		a.addCloser(func(context.Context) error {
			order = append(order, n)
			if n == 2 {
				return errors.New("close 2")
			}
			return nil
		})
	}

	err := a.Close()
	if err == nil || !strings.Contains(err.Error(), "close 2") {
		t.Errorf("Close() error = %v", err)
	}
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("close order mismatch (-want +got):\n%s", diff)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestApp_InitLogging(t *testing.T) {
	tests := []struct {
		format     string
		wantRouted bool
	}{
		{format: "text"},
		{format: "json", wantRouted: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := defaultConfig(t)
			cfg.Logging.Format = tt.format
			a := &app{cfg: cfg, sessionID: "oracle-test", sanitizer: security.NewLogSanitizer(), output: io.Discard}
			defer a.Close()

			if err := a.initLogging(context.Background()); err != nil {
				t.Fatalf("initLogging() error = %v", err)
			}
			if a.routed != tt.wantRouted {
				t.Errorf("routed = %v, want %v", a.routed, tt.wantRouted)
			}
			if _, isCloud := a.output.(*gcp.CloudLogger); isCloud != tt.wantRouted {
				t.Errorf("output = %T", a.output)
			}
			if a.passLogger() != nil {
				t.Error("monitor should not get a second structured logger")
			}
		})
	}
}
