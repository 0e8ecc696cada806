package env

import (
	"testing"

	"github.com/agentmesh/substrate/errs"
)

func strPtr(s string) *string { return &s }

func TestResolveUsesDefaultWhenUnset(t *testing.T) {
	r := New()
	r.lookupEnv = func(string) (string, bool) { return "", false }
	r.Register(Spec{Name: "AGENTMESH_LOG_LEVEL", Category: Runtime, Default: strPtr("info")})

	v, err := r.Resolve("AGENTMESH_LOG_LEVEL")
	if err != nil || v != "info" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestResolvePrefersEnvOverDefault(t *testing.T) {
	r := New()
	r.lookupEnv = func(k string) (string, bool) {
		if k == "AGENTMESH_LOG_LEVEL" {
			return "debug", true
		}
		return "", false
	}
	r.Register(Spec{Name: "AGENTMESH_LOG_LEVEL", Category: Runtime, Default: strPtr("info")})

	v, err := r.Resolve("AGENTMESH_LOG_LEVEL")
	if err != nil || v != "debug" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestResolveProgrammaticOverrideWinsRegardlessOfMode(t *testing.T) {
	r := New()
	r.WithMode(Isolated, "")
	r.lookupEnv = func(string) (string, bool) { return "env-value", true }
	r.Register(Spec{Name: "X", Category: Runtime, Default: strPtr("default")})
	r.SetOverride("X", "override")

	v, err := r.Resolve("X")
	if err != nil || v != "override" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestIsolatedIgnoresProcessEnv(t *testing.T) {
	r := New()
	r.WithMode(Isolated, "")
	r.lookupEnv = func(string) (string, bool) { return "should-not-be-seen", true }
	r.Register(Spec{Name: "X", Category: Runtime, Default: strPtr("fallback")})

	v, err := r.Resolve("X")
	if err != nil || v != "fallback" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestTenantModeUsesPerTenantOverrides(t *testing.T) {
	r := New()
	r.WithMode(Tenant, "tenant-a")
	r.lookupEnv = func(string) (string, bool) { return "should-not-be-seen", true }
	r.Register(Spec{Name: "X", Category: Runtime})
	r.SetTenantOverride("tenant-a", "X", "a-value")
	r.SetTenantOverride("tenant-b", "X", "b-value")

	v, err := r.Resolve("X")
	if err != nil || v != "a-value" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestLayeredPrefersLayerOverProcessEnv(t *testing.T) {
	r := New()
	r.WithMode(Layered, "")
	r.lookupEnv = func(string) (string, bool) { return "env-value", true }
	r.Register(Spec{Name: "AGENTMESH_API_KEY", Category: Provider, ConfigPath: "provider.anthropic.api_key"})
	if err := r.LoadLayer([]byte("provider:\n  anthropic:\n    api_key: layer-value\n")); err != nil {
		t.Fatal(err)
	}

	v, err := r.Resolve("AGENTMESH_API_KEY")
	if err != nil || v != "layer-value" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestLayeredFallsBackToProcessEnvWhenLayerMissesPath(t *testing.T) {
	r := New()
	r.WithMode(Layered, "")
	r.lookupEnv = func(string) (string, bool) { return "env-value", true }
	r.Register(Spec{Name: "AGENTMESH_API_KEY", Category: Provider, ConfigPath: "provider.openai.api_key"})
	if err := r.LoadLayer([]byte("provider:\n  anthropic:\n    api_key: layer-value\n")); err != nil {
		t.Fatal(err)
	}

	v, err := r.Resolve("AGENTMESH_API_KEY")
	if err != nil || v != "env-value" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestResolveUnrecognizedVariableIsNotFound(t *testing.T) {
	r := New()
	_, err := r.Resolve("NOPE")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestResolveRunsValidator(t *testing.T) {
	r := New()
	r.lookupEnv = func(string) (string, bool) { return "not-a-number", true }
	r.Register(Spec{
		Name:     "PORT",
		Category: Runtime,
		Validator: func(v string) error {
			for _, c := range v {
				if c < '0' || c > '9' {
					return errs.New(errs.Validation, "env", "not numeric")
				}
			}
			return nil
		},
	})

	_, err := r.Resolve("PORT")
	if !errs.Is(err, errs.Validation) {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestDumpMasksSensitiveValues(t *testing.T) {
	r := New()
	r.lookupEnv = func(string) (string, bool) { return "", false }
	r.Register(Spec{Name: "AGENTMESH_API_KEY", Category: Provider, Default: strPtr("sk-secret"), Sensitive: true})
	r.Register(Spec{Name: "AGENTMESH_LOG_LEVEL", Category: Runtime, Default: strPtr("info")})

	dump := r.Dump()
	if dump["AGENTMESH_API_KEY"] != "****" {
		t.Fatalf("expected masked value, got %q", dump["AGENTMESH_API_KEY"])
	}
	if dump["AGENTMESH_LOG_LEVEL"] != "info" {
		t.Fatalf("expected unmasked value, got %q", dump["AGENTMESH_LOG_LEVEL"])
	}
}
