package ecs

// ComponentKind is the closed set of component types an entity can carry.
// Components are resolved by kind index rather than free-form string keys so
// a missing or misspelled kind is a compile error, not a runtime surprise.
type ComponentKind int

const (
	KindTransform ComponentKind = iota
	KindConnection
	KindSessions
	KindBrain

	kindCount
)

func (k ComponentKind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindConnection:
		return "connection"
	case KindSessions:
		return "sessions"
	case KindBrain:
		return "brain"
	default:
		return "unknown"
	}
}

// Component is a plain data record describing one facet of an entity's state.
type Component interface {
	Kind() ComponentKind
}
