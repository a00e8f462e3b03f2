package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	// ScopeBuild covers a whole CLI invocation.
	ScopeBuild Scope = iota + 1
	// ScopePhase covers cache-load, transform, check and cache-save.
	ScopePhase
	// ScopeModule covers one module transform.
	ScopeModule
	// ScopeImport covers a single import resolution.
	ScopeImport
)

func (s Scope) String() string {
	switch s {
	case ScopeBuild:
		return "build"
	case ScopePhase:
		return "phase"
	case ScopeModule:
		return "module"
	case ScopeImport:
		return "import"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the tracer that stores it
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	GID      uint64
	Name     string // "check", "module:src/foo.js"
	Detail   string
	Extra    map[string]string
}
