// Package component defines the contract every executable unit of the
// substrate implements — agents, tools, and workflows alike — along with the
// scoped execution context those units run inside.
package component

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ID is a content-addressed component identifier derived from a component's
// name. Equal names always produce equal ids; this holds across processes
// and across restarts since the derivation has no random input.
type ID string

// DeriveID computes the stable identifier for a component name.
func DeriveID(name string) ID {
	sum := sha256.Sum256([]byte(name))
	return ID(hex.EncodeToString(sum[:]))
}

// Version is a semantic version triple. Compatibility between versions is
// major-only: two versions are compatible iff their major numbers match.
type Version struct {
	Major int
	Minor int
	Patch int
}

// CompatibleWith reports whether v and other share the same major version.
func (v Version) CompatibleWith(other Version) bool {
	return v.Major == other.Major
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Metadata describes a component: its stable identity, human-facing
// description, and version. UpdatedAt is never before CreatedAt; callers
// constructing or mutating Metadata must preserve that invariant.
type Metadata struct {
	ID          ID
	Name        string
	Description string
	Version     Version
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewMetadata derives ID from name and stamps CreatedAt/UpdatedAt to now.
func NewMetadata(name, description string, version Version, now time.Time) Metadata {
	return Metadata{
		ID:          DeriveID(name),
		Name:        name,
		Description: description,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch returns a copy of m with UpdatedAt advanced to now. It panics if now
// precedes m.CreatedAt, which would violate the UpdatedAt >= CreatedAt
// invariant.
func (m Metadata) Touch(now time.Time) Metadata {
	if now.Before(m.CreatedAt) {
		panic("component: Touch time precedes CreatedAt")
	}
	m.UpdatedAt = now
	return m
}
