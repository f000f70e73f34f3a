package components

import "folioverse.ai/internal/sim/ecs"

// Transform is the spatial state the presentation layer reads to place an
// entity in the 3D scene. The core never interprets it beyond wander drift.
type Transform struct {
	X, Y, Z float64
	Yaw     float64
}

func (t *Transform) Kind() ecs.ComponentKind { return ecs.KindTransform }

func NewTransform() *Transform { return &Transform{} }
