package component

import "fmt"

// ScopeKind names a level in the Global -> Session -> Workflow -> Agent/Tool
// scope tree.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeSession
	ScopeWorkflow
	ScopeAgent
	ScopeCustom
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeSession:
		return "session"
	case ScopeWorkflow:
		return "workflow"
	case ScopeAgent:
		return "agent"
	case ScopeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Scope identifies a node in the state-scope tree: Global, Session(id),
// Workflow(id), Agent(id), or Custom(name). Two scopes are the same state
// address iff Kind and ID are equal.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// Global is the root scope.
func Global() Scope { return Scope{Kind: ScopeGlobal} }

// Session scopes state to a session id.
func Session(id string) Scope { return Scope{Kind: ScopeSession, ID: id} }

// Workflow scopes state to a workflow run id.
func Workflow(id string) Scope { return Scope{Kind: ScopeWorkflow, ID: id} }

// Agent scopes state to an agent or tool invocation id.
func Agent(id string) Scope { return Scope{Kind: ScopeAgent, ID: id} }

// Custom scopes state to an arbitrary caller-chosen name.
func Custom(name string) Scope { return Scope{Kind: ScopeCustom, ID: name} }

func (s Scope) String() string {
	if s.ID == "" {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.ID)
}

// InheritancePolicy controls what a child ExecutionContext sees of its
// parent's shared data on creation.
type InheritancePolicy int

const (
	// Inherit gives the child direct read/write access to the parent's
	// shared map for the inherited scope keys; writes are visible to all
	// descendants sharing that scope key, including the parent.
	Inherit InheritancePolicy = iota
	// Isolate gives the child an empty shared map; nothing is visible from
	// the parent and nothing written is visible to the parent.
	Isolate
	// CopyOnWrite snapshots the parent's shared data at creation time; reads
	// see the snapshot, the first write to a key forks it into the child's
	// own map without affecting the parent.
	CopyOnWrite
)
