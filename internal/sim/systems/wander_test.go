package systems

import (
	"math"
	"testing"
	"time"

	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
)

func TestWanderStaysNearAnchor(t *testing.T) {
	w, _ := newTestWorld(t)
	e := spawnBot(t, w, "bot1", "Ada")
	tr := w.EnsureComponent(e, ecs.KindTransform).(*components.Transform)
	tr.X, tr.Z = 3, 2
	if err := w.AddSystem("wander", NewWanderSystem(7)); err != nil {
		t.Fatalf("add system: %v", err)
	}

	ax, az := tr.X, tr.Z
	moved := false
	for i := 0; i < 500; i++ {
		w.StepOnce(200 * time.Millisecond)
		dx, dz := tr.X-ax, tr.Z-az
		if d := math.Sqrt(dx*dx + dz*dz); d > wanderRadius+wanderSpeed {
			t.Fatalf("step %d: drifted %.2f units from anchor", i, d)
		}
		if tr.X != ax || tr.Z != az {
			moved = true
		}
	}
	if !moved {
		t.Fatalf("entity never moved")
	}
}

func TestWanderPausesWhileChatting(t *testing.T) {
	w, _ := newTestWorld(t)
	e := spawnBot(t, w, "bot1", "Ada")
	tr := w.EnsureComponent(e, ecs.KindTransform).(*components.Transform)
	brain := e.Component(ecs.KindBrain).(*components.Brain)
	brain.CurrentStatus = "chatting"
	if err := w.AddSystem("wander", NewWanderSystem(7)); err != nil {
		t.Fatalf("add system: %v", err)
	}

	x, z := tr.X, tr.Z
	for i := 0; i < 20; i++ {
		w.StepOnce(200 * time.Millisecond)
	}
	if tr.X != x || tr.Z != z {
		t.Fatalf("chatting entity moved from (%.2f, %.2f) to (%.2f, %.2f)", x, z, tr.X, tr.Z)
	}
}
