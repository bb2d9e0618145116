package scene

import (
	"context"
	"math"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/task"
)

// Resolver maps an object identifier to a readable local path.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Configurator builds Specs. Apart from asset resolution it is a pure
// function of the request.
type Configurator struct {
	resolver Resolver
}

func NewConfigurator(r Resolver) *Configurator {
	return &Configurator{resolver: r}
}

// Build derives the Spec for req: it selects objects with the per-sample
// RNG, resolves them, places them and computes one camera pose per frame.
func (c *Configurator) Build(ctx context.Context, req SampleRequest) (Spec, error) {
	spec, err := Layout(req)
	if err != nil {
		return Spec{}, err
	}

	for i := range spec.Objects {
		p, err := c.resolver.Resolve(ctx, spec.Objects[i].Identifier)
		if err != nil {
			return Spec{}, errors.Wrapf(err, "scene.build", "%s: resolve %s", spec.SampleID, spec.Objects[i].Identifier)
		}
		spec.Objects[i].LocalPath = p
	}
	return spec, nil
}

// Layout computes everything Build does except local paths. It never
// touches the filesystem or network.
func Layout(req SampleRequest) (Spec, error) {
	if err := req.Validate(); err != nil {
		return Spec{}, err
	}

	need := req.Kind.RequiredObjects()
	pool := distinct(req.Objects)
	if len(pool) < need {
		return Spec{}, errors.InsufficientObjects(string(req.Kind), need, len(pool))
	}

	rng, derived := sampleRNG(req.Seed, req.Index, req.Kind)
	chosen := pick(rng, pool, need)

	n := req.FrameCount()
	p := req.Params
	spec := Spec{
		Kind:       req.Kind,
		SampleID:   req.ID(),
		Seed:       derived,
		Objects:    make([]PlacedObject, need),
		FrameCount: n,
		Resolution: req.Resolution,
		FPS:        req.FPS,
	}

	for i, id := range chosen {
		t := Transform{Scale: p.TargetSize}
		if need > 1 {
			t = Transform{Position: p.Positions[i], Scale: p.Scales[i]}
		}
		spec.Objects[i] = PlacedObject{Identifier: id, Transform: canonicalTransform(t)}
	}

	switch req.Kind {
	case task.ShapeExtrapolation:
		spec.Camera = orbit(Vec3{}, p.Distance, p.Elevation, p.Rotations, p.FOV, n)
	case task.OcclusionDynamics:
		spec.Camera = orbit(centroid(p.Positions), p.Distance, p.Elevation, p.Rotations, p.FOV, n)
	case task.DepthParallax:
		spec.Camera = lateralPan(p.LateralRange, p.ForwardDistance, p.Height, p.LookAt, p.FOV, n)
	case task.ZoomConsistency:
		spec.Camera = dollyZoom(p.StartDistance, p.EndDistance, p.Elevation, p.Azimuth, p.FOV, n)
	}
	// The renderer only ever sees the JSON form.
	if _, err := spec.Marshal(); err != nil {
		return Spec{}, errors.WrapWithCode(err, errors.CodeValidation, "scene.layout", "scene is not serialisable")
	}
	return spec, nil
}

// orbit circles center at fixed distance and elevation. Azimuth advances
// 2π·rotations·i/n, so a full turn does not repeat its first frame.
func orbit(center Vec3, distance, elevationDeg, rotations, fov float64, n int) []CameraPose {
	el := radians(elevationDeg)
	poses := make([]CameraPose, n)
	for i := range poses {
		az := 2 * math.Pi * rotations * float64(i) / float64(n)
		poses[i] = pose(Vec3{
			center[0] + distance*math.Cos(el)*math.Cos(az),
			center[1] + distance*math.Cos(el)*math.Sin(az),
			center[2] + distance*math.Sin(el),
		}, center, fov)
	}
	return poses
}

// lateralPan slides along X from -range/2 to +range/2, both ends included.
func lateralPan(lateralRange, forward, height float64, lookAt Vec3, fov float64, n int) []CameraPose {
	poses := make([]CameraPose, n)
	for i := range poses {
		x := -lateralRange/2 + lateralRange*float64(i)/float64(n-1)
		poses[i] = pose(Vec3{x, -forward, height}, lookAt, fov)
	}
	return poses
}

// dollyZoom approaches the origin along a fixed direction; distance is
// linear from start to end, both ends included.
func dollyZoom(start, end, elevationDeg, azimuthDeg, fov float64, n int) []CameraPose {
	el, az := radians(elevationDeg), radians(azimuthDeg)
	poses := make([]CameraPose, n)
	for i := range poses {
		d := start + (end-start)*float64(i)/float64(n-1)
		poses[i] = pose(Vec3{
			d * math.Cos(el) * math.Cos(az),
			d * math.Cos(el) * math.Sin(az),
			d * math.Sin(el),
		}, Vec3{}, fov)
	}
	return poses
}

// Distance is the Euclidean distance between a pose's position and target.
func (p CameraPose) Distance() float64 {
	dx := p.Position[0] - p.LookAt[0]
	dy := p.Position[1] - p.LookAt[1]
	dz := p.Position[2] - p.LookAt[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func centroid(pts []Vec3) Vec3 {
	var c Vec3
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
		c[2] += p[2]
	}
	k := float64(len(pts))
	return Vec3{c[0] / k, c[1] / k, c[2] / k}
}

func pose(pos, lookAt Vec3, fov float64) CameraPose {
	return CameraPose{Position: canonicalVec(pos), LookAt: canonicalVec(lookAt), FOV: canonical(fov)}
}

func canonicalTransform(t Transform) Transform {
	return Transform{Position: canonicalVec(t.Position), Scale: canonical(t.Scale)}
}

func canonicalVec(v Vec3) Vec3 {
	return Vec3{canonical(v[0]), canonical(v[1]), canonical(v[2])}
}

// canonical rounds to 1e-9 and folds -0 into 0 so that the JSON form does
// not depend on last-bit differences between math implementations.
func canonical(f float64) float64 {
	r := math.Round(f*1e9) / 1e9
	if r == 0 {
		return 0
	}
	return r
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
