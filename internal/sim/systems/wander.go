package systems

import (
	"math"
	"math/rand"
	"time"

	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
)

const (
	wanderSpeed  = 0.35 // units per second
	wanderRadius = 4.0  // max distance from the spawn anchor
)

// WanderSystem drifts brain-bearing entities around their spawn point so the
// presentation layer has motion to render. Entities mid-conversation stand
// still and face where they were going.
type WanderSystem struct {
	rng     *rand.Rand
	anchors map[string][2]float64
}

func NewWanderSystem(seed int64) *WanderSystem {
	return &WanderSystem{
		rng:     rand.New(rand.NewSource(seed)),
		anchors: map[string][2]float64{},
	}
}

func (s *WanderSystem) Requires() []ecs.ComponentKind {
	return []ecs.ComponentKind{ecs.KindBrain, ecs.KindTransform}
}

func (s *WanderSystem) Update(w *ecs.World, dt time.Duration, entities []*ecs.Entity) {
	step := wanderSpeed * dt.Seconds()
	for _, e := range entities {
		tr, _ := e.Component(ecs.KindTransform).(*components.Transform)
		brain, _ := e.Component(ecs.KindBrain).(*components.Brain)
		if tr == nil || brain == nil {
			continue
		}
		anchor, ok := s.anchors[e.ID]
		if !ok {
			anchor = [2]float64{tr.X, tr.Z}
			s.anchors[e.ID] = anchor
		}
		if brain.CurrentStatus == "chatting" {
			continue
		}

		// Mostly keep heading, occasionally turn.
		if s.rng.Float64() < 0.05 {
			tr.Yaw += (s.rng.Float64() - 0.5) * math.Pi / 2
		}
		nx := tr.X + math.Cos(tr.Yaw)*step
		nz := tr.Z + math.Sin(tr.Yaw)*step
		dx, dz := nx-anchor[0], nz-anchor[1]
		if dx*dx+dz*dz > wanderRadius*wanderRadius {
			// Turn back toward the anchor instead of stepping out.
			tr.Yaw = math.Atan2(anchor[1]-tr.Z, anchor[0]-tr.X)
			continue
		}
		tr.X, tr.Z = nx, nz
	}
}
