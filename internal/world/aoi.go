package world

import (
	"math"

	"github.com/realmrelay/server/internal/component"
)

// PlanarDistance is the distance between two points on the ground plane.
// Height is ignored.
func PlanarDistance(a, b component.Position) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

// FindNearby returns the identities within radius of pos, in join order,
// excluding selfID. The boundary is inclusive.
func (r *Registry) FindNearby(selfID string, pos component.Position, radius float64) []string {
	var out []string
	for _, id := range r.order {
		if id == selfID {
			continue
		}
		if PlanarDistance(pos, r.players[id].Character.Position) <= radius {
			out = append(out, id)
		}
	}
	return out
}
