package ecs

// Entity is an identifier plus an optional tag and an attached set of
// components, at most one per kind. Entities are owned by the World and must
// only be mutated from the world loop goroutine.
type Entity struct {
	ID   string
	Tag  string
	Name string

	components [kindCount]Component
}

// Component returns the attached component of the given kind, or nil.
func (e *Entity) Component(k ComponentKind) Component {
	if e == nil || k < 0 || k >= kindCount {
		return nil
	}
	return e.components[k]
}

// Has reports whether a component of the given kind is attached.
func (e *Entity) Has(k ComponentKind) bool {
	return e.Component(k) != nil
}

// Attach sets the component for its kind, replacing any existing one.
func (e *Entity) Attach(c Component) {
	if e == nil || c == nil {
		return
	}
	k := c.Kind()
	if k < 0 || k >= kindCount {
		return
	}
	e.components[k] = c
}

// Detach removes the component of the given kind, if present.
func (e *Entity) Detach(k ComponentKind) {
	if e == nil || k < 0 || k >= kindCount {
		return
	}
	e.components[k] = nil
}
