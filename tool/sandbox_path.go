package tool

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/agentmesh/substrate/env"
	"github.com/agentmesh/substrate/errs"
)

// JailDirVariable is the recognized Path-category environment variable
// naming the default sandbox jail directory, registered against a
// Registry by NewPathSandboxFromEnv.
const JailDirVariable = "AGENTMESH_SANDBOX_JAIL_DIR"

// reservedDeviceNames are Windows reserved device names; rejected
// case-insensitively regardless of host OS since sandboxed content may be
// shared across platforms.
var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

var disallowedPrefixes = []string{"/etc", "/sys", "/proc", "/dev"}

// PathSandbox confines tool filesystem access to a jail directory, rejecting
// traversal and disallowed-prefix access per spec §4.H.
type PathSandbox struct {
	JailDir string
}

func NewPathSandbox(jailDir string) *PathSandbox {
	return &PathSandbox{JailDir: jailDir}
}

// NewPathSandboxFromEnv registers JailDirVariable against r, replacing any
// spec already registered under that name, resolves it, and builds a
// PathSandbox rooted there.
// Deployments select the jail root via process env, a layered config
// file, or a programmatic override without touching call sites.
func NewPathSandboxFromEnv(r *env.Registry, defaultJailDir string) (*PathSandbox, error) {
	r.Register(env.Spec{
		Name:        JailDirVariable,
		Description: "root directory tool filesystem access is confined to",
		Category:    env.Path,
		Default:     &defaultJailDir,
	})
	jailDir, err := r.Resolve(JailDirVariable)
	if err != nil {
		return nil, err
	}
	return NewPathSandbox(jailDir), nil
}

// Check validates and resolves path, returning the jailed absolute path or a
// Security error.
func (s *PathSandbox) Check(path string) (string, error) {
	if containsNullByte(path) || containsOverlongOrFullWidthDots(path) {
		return "", errs.New(errs.Security, "tool.sandbox.path", "path contains disallowed characters: "+path)
	}
	if strings.Contains(path, "..") || strings.Contains(path, "%2e%2e") || strings.Contains(strings.ToLower(path), "%2e%2e") {
		return "", errs.New(errs.Security, "tool.sandbox.path", "path traversal rejected: "+path)
	}

	base := filepath.Base(path)
	if reservedDeviceNames[strings.ToUpper(trimExt(base))] {
		return "", errs.New(errs.Security, "tool.sandbox.path", "reserved device name rejected: "+path)
	}

	joined := filepath.Join(s.JailDir, path)
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", errs.Wrap(errs.Security, "tool.sandbox.path", "failed to resolve path", err)
	}
	jailAbs, err := filepath.Abs(s.JailDir)
	if err != nil {
		return "", errs.Wrap(errs.Security, "tool.sandbox.path", "failed to resolve jail dir", err)
	}
	for _, prefix := range disallowedPrefixes {
		if strings.HasPrefix(resolved, prefix) {
			return "", errs.New(errs.Security, "tool.sandbox.path", "disallowed path prefix: "+resolved)
		}
	}
	rel, err := filepath.Rel(jailAbs, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errs.New(errs.Security, "tool.sandbox.path", "path escapes jail directory: "+path)
	}
	return resolved, nil
}

func trimExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, 0)
}

// containsOverlongOrFullWidthDots rejects unicode full-width dot variants
// (U+FF0E fullwidth full stop, U+2024 one dot leader) used to smuggle "."
// sequences past naive traversal checks, plus any overlong UTF-8 encoding
// artifact surfaced as a replacement rune.
func containsOverlongOrFullWidthDots(s string) bool {
	for _, r := range s {
		if r == '．' || r == '․' || r == unicode.ReplacementChar {
			return true
		}
	}
	return false
}
