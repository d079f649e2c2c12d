package board

import (
	"fmt"
	"math/rand/v2"
)

// Placement constants shared by all board variants.
const (
	// BaseWidth is the initial width of every loaded card.
	BaseWidth = 300.0

	gridColumns = 3
	gridStepX   = 420.0
	gridStepY   = 550.0
	gridOriginX = 50.0
	gridOriginY = 100.0

	placeholderWidth   = 250.0
	placeholderHeight  = 200.0
	placeholderSpreadX = 300.0
	placeholderSpreadY = 200.0
	placeholderTag     = "test"
)

// Policy selects how initial card positions are computed.
type Policy string

const (
	// PolicyRandom scatters cards uniformly inside the viewport.
	PolicyRandom Policy = "random"
	// PolicyTiled lays cards out on a deterministic three-column grid.
	PolicyTiled Policy = "tiled"
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyRandom, PolicyTiled:
		return p, nil
	case "":
		return PolicyRandom, nil
	default:
		return "", fmt.Errorf("unknown layout policy %q (want %q or %q)", s, PolicyRandom, PolicyTiled)
	}
}

// Viewport returns the viewport Initialize should receive for this policy.
// The tiled policy always ignores the viewport; the random policy falls
// back to tiling when no viewport is known.
func (p Policy) Viewport(vp *Size) *Size {
	if p == PolicyTiled || vp == nil {
		return nil
	}
	v := *vp
	return &v
}

// TiledPosition returns the grid slot for the card at zero-based index.
func TiledPosition(index int) Position {
	return Position{
		X: float64(index%gridColumns)*gridStepX + gridOriginX,
		Y: float64(index/gridColumns)*gridStepY + gridOriginY,
	}
}

// ScatterPosition draws a uniform position that keeps a card of size card
// inside viewport. When the viewport is smaller than the card the range is
// negative and so is the result; it is not clamped.
func ScatterPosition(rng *rand.Rand, viewport, card Size) Position {
	return Position{
		X: rng.Float64() * (viewport.Width - card.Width),
		Y: rng.Float64() * (viewport.Height - card.Height),
	}
}

// clampTo restricts pos so a card of size card stays inside parent.
func clampTo(pos Position, card, parent Size) Position {
	return Position{
		X: max(0, min(pos.X, parent.Width-card.Width)),
		Y: max(0, min(pos.Y, parent.Height-card.Height)),
	}
}
