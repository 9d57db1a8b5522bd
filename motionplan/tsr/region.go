// Package tsr implements task space regions, bounded deviations of an end effector pose from a nominal frame,
// and chains of them in which every region's nominal frame follows the pose produced by the one before it.
package tsr

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// The six axes of a displacement: translation followed by roll, pitch and yaw.
const (
	AxisX = iota
	AxisY
	AxisZ
	AxisRoll
	AxisPitch
	AxisYaw
	numAxes
)

// NoBody is the body name of a region whose origin is expressed in the world frame.
const NoBody = "NULL"

var axisNames = [numAxes]string{"x", "y", "z", "roll", "pitch", "yaw"}

// AxisName returns the name of the axis.
func AxisName(axis int) string {
	if axis < 0 || axis >= numAxes {
		return fmt.Sprintf("axis(%d)", axis)
	}
	return axisNames[axis]
}

// NewInvalidBoundsError is returned when a bound has its minimum above its maximum.
func NewInvalidBoundsError(axis int, lim referenceframe.Limit) error {
	return errors.Errorf("invalid bounds on %s axis: min %v is not at or below max %v", AxisName(axis), lim.Min, lim.Max)
}

// Displacement is a deviation from a region's nominal frame: x, y, z, roll, pitch, yaw.
type Displacement [numAxes]float64

// Pose returns the rigid transform the displacement describes, with R = Rz(yaw)*Ry(pitch)*Rx(roll).
func (d Displacement) Pose() spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: d[AxisX], Y: d[AxisY], Z: d[AxisZ]},
		&spatialmath.EulerAngles{Roll: d[AxisRoll], Pitch: d[AxisPitch], Yaw: d[AxisYaw]},
	)
}

// DisplacementFromPose decomposes a pose into a displacement. rollHint resolves roll when pitch is at +-pi/2.
func DisplacementFromPose(p spatialmath.Pose, rollHint *float64) Displacement {
	pt := p.Point()
	rpy := p.Orientation().RotationMatrix().EulerAnglesWithHint(rollHint)
	return Displacement{pt.X, pt.Y, pt.Z, rpy.Roll, rpy.Pitch, rpy.Yaw}
}

// Bounds are the allowed displacement range on each axis. A zero width axis is rigidly fixed and an axis with both
// limits infinite is free.
type Bounds [numAxes]referenceframe.Limit

// Validate checks that every axis has min <= max.
func (b Bounds) Validate() error {
	for i, lim := range b {
		if math.IsNaN(lim.Min) || math.IsNaN(lim.Max) || lim.Min > lim.Max {
			return NewInvalidBoundsError(i, lim)
		}
	}
	return nil
}

// Fixed reports whether the axis has zero width.
func (b Bounds) Fixed(axis int) bool {
	return b[axis].Min == b[axis].Max
}

// Free reports whether the axis is unbounded in both directions.
func (b Bounds) Free(axis int) bool {
	return math.IsInf(b[axis].Min, -1) && math.IsInf(b[axis].Max, 1)
}

// Unwrap moves each rotation axis of d by a multiple of 2pi onto the representative nearest its bounds. An angle
// already within its bounds is unchanged.
func (b Bounds) Unwrap(d Displacement) Displacement {
	for axis := AxisRoll; axis <= AxisYaw; axis++ {
		best, gap := d[axis], b.gap(axis, d[axis])
		for _, shift := range []float64{-2 * math.Pi, 2 * math.Pi} {
			if g := b.gap(axis, d[axis]+shift); g < gap {
				best, gap = d[axis]+shift, g
			}
		}
		d[axis] = best
	}
	return d
}

// gap is how far v lies outside the axis bounds.
func (b Bounds) gap(axis int, v float64) float64 {
	return math.Max(0, math.Max(b[axis].Min-v, v-b[axis].Max))
}

// Extent returns the sum of max-min over all axes.
func (b Bounds) Extent() float64 {
	sum := 0.
	for _, lim := range b {
		sum += lim.Max - lim.Min
	}
	return sum
}

// Region is a single task space region.
type Region struct {
	// Manipulator is the index of the robot manipulator the region constrains.
	Manipulator int
	// Body names the body the origin is attached to, NoBody for the world.
	Body string
	// Origin is the nominal frame of the region when it is first in a chain.
	Origin spatialmath.Pose
	// Offset is the pose of the end effector in the region frame.
	Offset spatialmath.Pose
	Bounds Bounds
}

// NewRegion validates the bounds and returns a region. Nil poses are treated as the identity.
func NewRegion(manipulator int, origin, offset spatialmath.Pose, bounds Bounds) (*Region, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if origin == nil {
		origin = spatialmath.NewZeroPose()
	}
	if offset == nil {
		offset = spatialmath.NewZeroPose()
	}
	return &Region{
		Manipulator: manipulator,
		Body:        NoBody,
		Origin:      origin,
		Offset:      offset,
		Bounds:      bounds,
	}, nil
}

// DisplacementFrom returns the unconstrained deviation of the candidate end effector pose from the nominal frame:
// the decomposition of nominal^-1 * candidate * offset^-1.
func (r *Region) DisplacementFrom(nominal, candidate spatialmath.Pose, rollHint *float64) Displacement {
	local := spatialmath.Compose(spatialmath.PoseBetween(nominal, candidate), spatialmath.PoseInverse(r.Offset))
	return DisplacementFromPose(local, rollHint)
}

// ClampToBounds clamps each axis of d into the bounds, after unwrapping rotations toward them. The returned mask
// marks axes that are at or beyond a bound, which always includes fixed axes. A value exactly on a bound counts as
// active.
func (r *Region) ClampToBounds(d Displacement) (Displacement, [numAxes]bool) {
	d = r.Bounds.Unwrap(d)
	var clamped Displacement
	var active [numAxes]bool
	for i, lim := range r.Bounds {
		switch {
		case d[i] <= lim.Min:
			clamped[i] = lim.Min
			active[i] = true
		case d[i] >= lim.Max:
			clamped[i] = lim.Max
			active[i] = true
		default:
			clamped[i] = d[i]
		}
		if r.Bounds.Fixed(i) {
			active[i] = true
		}
	}
	return clamped, active
}

// PoseAt returns the end effector pose for displacement d from the nominal frame, nominal * d * offset.
func (r *Region) PoseAt(nominal spatialmath.Pose, d Displacement) spatialmath.Pose {
	return spatialmath.Compose(spatialmath.Compose(nominal, d.Pose()), r.Offset)
}

// ClosestPose returns the pose within the region's bounds closest to the candidate under the per-axis clamp.
func (r *Region) ClosestPose(nominal, candidate spatialmath.Pose, rollHint *float64) spatialmath.Pose {
	clamped, _ := r.ClampToBounds(r.DisplacementFrom(nominal, candidate, rollHint))
	return r.PoseAt(nominal, clamped)
}

// Contains reports whether the candidate lies within the bounds, up to tol on each axis.
func (r *Region) Contains(nominal, candidate spatialmath.Pose, tol float64) bool {
	d := r.Bounds.Unwrap(r.DisplacementFrom(nominal, candidate, nil))
	for i, lim := range r.Bounds {
		if d[i] < lim.Min-tol || d[i] > lim.Max+tol {
			return false
		}
	}
	return true
}
