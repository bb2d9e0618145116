package task

import (
	"fmt"
	"math"
)

// ContextFraction is the share of the video shown to a model as context;
// the rest is what it must predict.
const ContextFraction = 0.75

// Prompt returns the fixed prompt text for a sample of kind k.
func Prompt(k Kind, p Params) string {
	shown := pct(ContextFraction)
	rest := pct(1 - ContextFraction)

	switch k {
	case ShapeExtrapolation:
		total := 360 * p.Rotations
		seen := total * ContextFraction
		return fmt.Sprintf("A camera orbits %s degrees around a 3D object. Given the first %s of the video (%s degrees of rotation), "+
			"predict what the object looks like from the remaining unseen angles. Generate the final %s of frames showing the back side of the object.",
			deg(total), shown, deg(seen), rest)
	case OcclusionDynamics:
		return fmt.Sprintf("A camera orbits around two 3D objects. As the camera moves, one object progressively occludes the other. "+
			"Given the first %s of the video (%s degrees of the orbit), predict how the occlusion pattern changes in the remaining frames.",
			shown, deg(360*p.Rotations*ContextFraction))
	case DepthParallax:
		return fmt.Sprintf("A camera moves laterally across a scene containing three 3D objects at different depths. "+
			"Near objects appear to move faster than far objects (parallax effect). Given the first %s of the camera's lateral movement, predict the remaining frames.",
			shown)
	case ZoomConsistency:
		return fmt.Sprintf("A camera zooms steadily toward a 3D object from a fixed angle. Given the first %s of the zoom sequence, "+
			"predict the remaining %s showing the object at closer range with increasing detail.",
			shown, rest)
	default:
		return ""
	}
}

func pct(f float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(f*100)))
}

func deg(d float64) string {
	if d == math.Trunc(d) {
		return fmt.Sprintf("%d", int(d))
	}
	return fmt.Sprintf("%.1f", d)
}
