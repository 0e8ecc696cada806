// Package env implements the environment variable registry: every
// recognized variable is declared with a category, optional default,
// validator, and config path, then resolved through process env, a
// layered YAML file, or per-tenant overrides depending on isolation mode.
package env

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/substrate/errs"
)

// Category groups a variable by the subsystem that consumes it.
type Category int

const (
	Runtime Category = iota
	Provider
	Tool
	State
	Session
	Hook
	Path
)

func (c Category) String() string {
	switch c {
	case Runtime:
		return "runtime"
	case Provider:
		return "provider"
	case Tool:
		return "tool"
	case State:
		return "state"
	case Session:
		return "session"
	case Hook:
		return "hook"
	case Path:
		return "path"
	default:
		return "unknown"
	}
}

// Validator checks a resolved raw value before it is handed back to the
// caller. A nil Validator accepts anything.
type Validator func(value string) error

// Spec declares one recognized environment variable.
type Spec struct {
	Name        string
	Description string
	Category    Category
	Default     *string
	Validator   Validator

	// ConfigPath is a dot-separated lookup path into a loaded layer
	// document (see Registry.LoadLayer), consulted under Layered mode.
	ConfigPath string

	// Sensitive values are masked as "****" by Dump.
	Sensitive bool
}

// Mode selects where Resolve looks besides programmatic overrides and
// the variable's default.
type Mode int

const (
	// Global reads the OS process environment.
	Global Mode = iota
	// Isolated ignores the OS process environment entirely.
	Isolated
	// Layered consults a loaded YAML layer document on top of the OS
	// process environment (layer wins over env when both are set).
	Layered
	// Tenant consults a per-tenant override set and ignores the OS
	// process environment, like Isolated.
	Tenant
)

// Registry holds the set of recognized variables plus the override
// layers consulted during Resolve, per §6's isolation-mode semantics.
type Registry struct {
	mu sync.RWMutex

	specs    map[string]Spec
	mode     Mode
	tenantID string

	programmatic    map[string]string
	tenantOverrides map[string]map[string]string
	layer           map[string]any

	// lookupEnv abstracts os.LookupEnv for tests.
	lookupEnv func(string) (string, bool)
}

// New builds a Registry in Global mode.
func New() *Registry {
	return &Registry{
		specs:           make(map[string]Spec),
		programmatic:    make(map[string]string),
		tenantOverrides: make(map[string]map[string]string),
		lookupEnv:       os.LookupEnv,
	}
}

// WithMode returns the registry itself after switching isolation mode.
// Tenant mode additionally requires a tenantID.
func (r *Registry) WithMode(mode Mode, tenantID string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	r.tenantID = tenantID
	return r
}

// Register adds or replaces a variable spec.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

// SetOverride installs a programmatic override, the highest-precedence
// source for Resolve regardless of isolation mode.
func (r *Registry) SetOverride(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programmatic[name] = value
}

// SetTenantOverride installs a per-tenant override consulted under
// Tenant mode for the matching tenantID.
func (r *Registry) SetTenantOverride(tenantID, name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tenantOverrides[tenantID]
	if !ok {
		set = make(map[string]string)
		r.tenantOverrides[tenantID] = set
	}
	set[name] = value
}

// LoadLayer parses a YAML document and installs it as the layer
// consulted by Resolve under Layered mode via each Spec's ConfigPath.
func (r *Registry) LoadLayer(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errs.Wrap(errs.Validation, "env", "parse layer document", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layer = doc
	return nil
}

// LoadLayerFile reads path and installs it as the layer document.
func (r *Registry) LoadLayerFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.Storage, "env", "read layer file "+path, err)
	}
	return r.LoadLayer(data)
}

// Resolve returns the value for a registered variable, applying the
// precedence programmatic overrides > environment (mode-dependent) >
// default, then running the spec's Validator if any.
func (r *Registry) Resolve(name string) (string, error) {
	r.mu.RLock()
	spec, specFound := r.specs[name]
	override, overrideFound := r.programmatic[name]
	mode := r.mode
	tenantID := r.tenantID
	r.mu.RUnlock()

	if !specFound {
		return "", errs.New(errs.NotFound, "env", "unrecognized variable "+name)
	}
	if overrideFound {
		return validated(spec, override)
	}

	value, found := r.resolveFromSource(spec, mode, tenantID)
	if !found {
		if spec.Default != nil {
			return validated(spec, *spec.Default)
		}
		return "", errs.New(errs.NotFound, "env", "variable "+name+" has no value and no default")
	}
	return validated(spec, value)
}

func (r *Registry) resolveFromSource(spec Spec, mode Mode, tenantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch mode {
	case Isolated:
		return "", false
	case Tenant:
		set := r.tenantOverrides[tenantID]
		v, ok := set[spec.Name]
		return v, ok
	case Layered:
		if spec.ConfigPath != "" {
			if v, ok := lookupPath(r.layer, spec.ConfigPath); ok {
				return v, true
			}
		}
		return r.lookupEnv(spec.Name)
	default: // Global
		return r.lookupEnv(spec.Name)
	}
}

func validated(spec Spec, value string) (string, error) {
	if spec.Validator != nil {
		if err := spec.Validator(value); err != nil {
			return "", errs.Wrap(errs.Validation, "env", "validate "+spec.Name, err)
		}
	}
	return value, nil
}

// lookupPath walks a dot-separated path through a decoded YAML document
// and stringifies the leaf value it finds, if any.
func lookupPath(doc map[string]any, path string) (string, bool) {
	if doc == nil {
		return "", false
	}
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[part]
		if !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		return v, true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// Dump returns every registered variable's resolved value, masking
// Sensitive specs, for diagnostic output. Unresolvable variables are
// omitted rather than erroring the whole dump.
func (r *Registry) Dump() map[string]string {
	r.mu.RLock()
	specs := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	r.mu.RUnlock()

	out := make(map[string]string, len(specs))
	for _, s := range specs {
		v, err := r.Resolve(s.Name)
		if err != nil {
			continue
		}
		if s.Sensitive {
			out[s.Name] = "****"
			continue
		}
		out[s.Name] = v
	}
	return out
}

var (
	defaultMu  sync.Mutex
	defaultReg *Registry
)

// Default returns the process-wide singleton registry, per §9's "Global
// state" note: the environment registry is one of the few constructs
// allowed to live behind a package-level singleton instead of an
// explicit injected container.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultReg == nil {
		defaultReg = New()
	}
	return defaultReg
}
