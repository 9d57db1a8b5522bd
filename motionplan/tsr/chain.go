package tsr

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
	"go.viam.com/compnetx/utils"
)

var (
	// ErrEmptyChain is returned when a chain is initialized without any regions.
	ErrEmptyChain = errors.New("task space region chain has no regions")

	// ErrUninitializedChain is returned when a chain is queried before Initialize has succeeded.
	ErrUninitializedChain = errors.New("task space region chain has not been initialized")
)

// defaultSampleRange bounds sampling of infinite translation limits, matching referenceframe.RandomFrameInputs.
const defaultSampleRange = 999.

// Flags mark what a chain is used for. They are not mutually exclusive.
type Flags struct {
	SampleStart bool
	SampleGoal  bool
	Constrain   bool
}

// Mimic ties a chain value to an earlier one: full[Index] = full[Source] + Offset, clamped to the bounds of Index.
// Indices address the full value vector, one entry per non fixed axis of every region in order.
type Mimic struct {
	Index  int     `json:"index"`
	Source int     `json:"source"`
	Offset float64 `json:"offset"`
}

type axisRef struct {
	region int
	axis   int
}

// Chain is an ordered list of regions. The nominal frame of region i is the pose chosen for region i-1 composed
// with region i's Origin; the first region uses its Origin directly.
//
// The chain's values are the displacements on every non fixed axis, region by region in x y z roll pitch yaw order,
// with mimicked entries removed.
type Chain struct {
	Flags
	MimicBody string

	regions []*Region
	mimic   []Mimic

	initialized bool
	full        []axisRef
	fullIndex   [][numAxes]int
	exposed     []int
	dependent   map[int]Mimic
	extent      float64
}

// NewChain builds and initializes a chain from the regions.
func NewChain(flags Flags, regions ...*Region) (*Chain, error) {
	c := &Chain{Flags: flags, MimicBody: NoBody}
	for _, r := range regions {
		c.AddRegion(r)
	}
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	return c, nil
}

// AddRegion appends a region. The chain must be initialized again before use.
func (c *Chain) AddRegion(r *Region) {
	c.regions = append(c.regions, r)
	c.initialized = false
}

// SetMimic replaces the mimic table. The chain must be initialized again before use.
func (c *Chain) SetMimic(body string, mimic ...Mimic) {
	c.MimicBody = body
	c.mimic = append([]Mimic{}, mimic...)
	c.initialized = false
}

// Initialize validates the regions and mimic table and computes the chain's value layout.
func (c *Chain) Initialize() error {
	c.initialized = false
	if len(c.regions) == 0 {
		return ErrEmptyChain
	}
	c.full = nil
	c.fullIndex = make([][numAxes]int, len(c.regions))
	c.extent = 0
	for i, r := range c.regions {
		if r == nil {
			return errors.Errorf("region %d is nil", i)
		}
		if err := r.Bounds.Validate(); err != nil {
			return errors.Wrapf(err, "region %d", i)
		}
		for axis := 0; axis < numAxes; axis++ {
			c.fullIndex[i][axis] = -1
			if !r.Bounds.Fixed(axis) {
				c.fullIndex[i][axis] = len(c.full)
				c.full = append(c.full, axisRef{i, axis})
			}
		}
		c.extent += r.Bounds.Extent()
	}

	sort.Slice(c.mimic, func(i, j int) bool { return c.mimic[i].Index < c.mimic[j].Index })
	c.dependent = make(map[int]Mimic, len(c.mimic))
	for _, m := range c.mimic {
		if m.Source < 0 || m.Index >= len(c.full) || m.Source >= m.Index {
			return errors.Errorf("mimic entry %d <- %d must satisfy 0 <= source < index < %d", m.Index, m.Source, len(c.full))
		}
		if _, ok := c.dependent[m.Index]; ok {
			return errors.Errorf("chain value %d is mimicked more than once", m.Index)
		}
		c.dependent[m.Index] = m
	}
	c.exposed = c.exposed[:0]
	for idx := range c.full {
		if _, ok := c.dependent[idx]; !ok {
			c.exposed = append(c.exposed, idx)
		}
	}
	c.initialized = true
	return nil
}

// IsForStartSampling reports whether start poses are sampled from this chain.
func (c *Chain) IsForStartSampling() bool { return c.SampleStart }

// IsForGoalSampling reports whether goal poses are sampled from this chain.
func (c *Chain) IsForGoalSampling() bool { return c.SampleGoal }

// IsForConstraint reports whether the whole path is constrained to this chain.
func (c *Chain) IsForConstraint() bool { return c.Constrain }

// ManipulatorIndex returns the manipulator of the first region, or -1 when the chain is empty.
func (c *Chain) ManipulatorIndex() int {
	if len(c.regions) == 0 {
		return -1
	}
	return c.regions[0].Manipulator
}

// Regions returns the chain's regions in order.
func (c *Chain) Regions() []*Region {
	return append([]*Region{}, c.regions...)
}

// NumDOF returns the number of values the chain exposes.
func (c *Chain) NumDOF() (int, error) {
	if !c.initialized {
		return 0, ErrUninitializedChain
	}
	return len(c.exposed), nil
}

// TotalBoundExtent returns the sum of max-min over every axis of every region.
func (c *Chain) TotalBoundExtent() (float64, error) {
	if !c.initialized {
		return 0, ErrUninitializedChain
	}
	return c.extent, nil
}

// ChainJointLimits returns the bounds of each exposed value.
func (c *Chain) ChainJointLimits() ([]referenceframe.Limit, error) {
	if !c.initialized {
		return nil, ErrUninitializedChain
	}
	limits := make([]referenceframe.Limit, 0, len(c.exposed))
	for _, idx := range c.exposed {
		limits = append(limits, c.limit(idx))
	}
	return limits, nil
}

// NumMimicDOF returns how many chain values are mimicked.
func (c *Chain) NumMimicDOF() int {
	return len(c.mimic)
}

// MimicDOFIndices returns the full vector indices of the mimicked values.
func (c *Chain) MimicDOFIndices() []int {
	inds := make([]int, 0, len(c.mimic))
	for _, m := range c.mimic {
		inds = append(inds, m.Index)
	}
	return inds
}

// MimicValuesToFull expands exposed chain values into the full value vector by filling in mimicked entries.
func (c *Chain) MimicValuesToFull(values []float64) ([]float64, error) {
	if !c.initialized {
		return nil, ErrUninitializedChain
	}
	if len(values) != len(c.exposed) {
		return nil, referenceframe.NewIncorrectDoFError(len(values), len(c.exposed))
	}
	full := make([]float64, len(c.full))
	for k, idx := range c.exposed {
		full[idx] = values[k]
	}
	for _, m := range c.mimic {
		lim := c.limit(m.Index)
		full[m.Index] = utils.Clamp(full[m.Source]+m.Offset, lim.Min, lim.Max)
	}
	return full, nil
}

// ExtractMimicDOFValues returns the values of the mimicked entries implied by the exposed values.
func (c *Chain) ExtractMimicDOFValues(values []float64) ([]float64, error) {
	full, err := c.MimicValuesToFull(values)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(c.mimic))
	for _, m := range c.mimic {
		out = append(out, full[m.Index])
	}
	return out, nil
}

// Transform returns the end effector pose for the given exposed chain values. Values are not clamped.
func (c *Chain) Transform(values []float64) (spatialmath.Pose, error) {
	full, err := c.MimicValuesToFull(values)
	if err != nil {
		return nil, err
	}
	var result spatialmath.Pose
	for i, r := range c.regions {
		var d Displacement
		for axis := 0; axis < numAxes; axis++ {
			if idx := c.fullIndex[i][axis]; idx >= 0 {
				d[axis] = full[idx]
			} else {
				d[axis] = r.Bounds[axis].Min
			}
		}
		result = r.PoseAt(c.nominal(i, result), d)
	}
	return result, nil
}

// Sample draws uniform values within the bounds and returns the resulting pose and the values. Infinite translation
// limits are sampled within +-999 and infinite rotation limits within +-pi.
func (c *Chain) Sample(rng *rand.Rand) (spatialmath.Pose, []float64, error) {
	if !c.initialized {
		return nil, nil, ErrUninitializedChain
	}
	if rng == nil {
		//nolint:gosec
		rng = rand.New(rand.NewSource(1))
	}
	values := make([]float64, 0, len(c.exposed))
	for _, idx := range c.exposed {
		lim := c.limit(idx)
		span := defaultSampleRange
		if c.full[idx].axis >= AxisRoll {
			span = math.Pi
		}
		lo := math.Max(lim.Min, -span)
		hi := math.Min(lim.Max, span)
		values = append(values, lo+rng.Float64()*(hi-lo))
	}
	pose, err := c.Transform(values)
	if err != nil {
		return nil, nil, err
	}
	return pose, values, nil
}

// RegionEvaluation is the state of one region during a pass through the chain.
type RegionEvaluation struct {
	// Nominal is the region's frame for this pass.
	Nominal spatialmath.Pose
	// Raw is the unconstrained displacement of the query, with rotations unwrapped toward the bounds.
	Raw Displacement
	// Clamped is the displacement actually used, after clamping and mimicking.
	Clamped Displacement
	// Active marks axes at or beyond a bound, fixed or mimicked.
	Active [numAxes]bool
	// Result is the end effector pose chosen for this region.
	Result spatialmath.Pose
}

// Evaluation is the outcome of a single forward pass of a query pose through the chain.
type Evaluation struct {
	Regions []RegionEvaluation
	// Pose is the pose chosen by the last region.
	Pose spatialmath.Pose
	// Values are the exposed chain values of Pose.
	Values []float64
	// Cost is the summed squared difference between raw and clamped displacements.
	Cost float64
}

// Evaluate makes a single pass through the regions in order, clamping each region's displacement of the query and
// using the clamped pose as the next region's nominal frame. seed, if non-empty, gives exposed chain values used to
// resolve roll at gimbal lock.
func (c *Chain) Evaluate(query spatialmath.Pose, seed []float64) (*Evaluation, error) {
	if !c.initialized {
		return nil, ErrUninitializedChain
	}
	var seedFull []float64
	if len(seed) > 0 {
		var err error
		if seedFull, err = c.MimicValuesToFull(seed); err != nil {
			return nil, err
		}
	}

	full := make([]float64, len(c.full))
	eval := &Evaluation{Regions: make([]RegionEvaluation, 0, len(c.regions))}
	var result spatialmath.Pose
	for i, r := range c.regions {
		nominal := c.nominal(i, result)
		raw := r.Bounds.Unwrap(r.DisplacementFrom(nominal, query, c.rollHint(i, seedFull)))
		clamped, active := r.ClampToBounds(raw)
		for axis := 0; axis < numAxes; axis++ {
			idx := c.fullIndex[i][axis]
			if idx < 0 {
				continue
			}
			if m, ok := c.dependent[idx]; ok {
				lim := r.Bounds[axis]
				clamped[axis] = utils.Clamp(full[m.Source]+m.Offset, lim.Min, lim.Max)
				active[axis] = true
			}
			full[idx] = clamped[axis]
		}
		for axis := range raw {
			eval.Cost += utils.Square(raw[axis] - clamped[axis])
		}
		result = r.PoseAt(nominal, clamped)
		eval.Regions = append(eval.Regions, RegionEvaluation{
			Nominal: nominal,
			Raw:     raw,
			Clamped: clamped,
			Active:  active,
			Result:  result,
		})
	}
	eval.Pose = result
	eval.Values = make([]float64, 0, len(c.exposed))
	for _, idx := range c.exposed {
		eval.Values = append(eval.Values, full[idx])
	}
	return eval, nil
}

// ClosestTransform projects the query onto the chain with a single clamped pass and returns the resulting pose, the
// chain values that produce it, and the residual cost of the projection.
func (c *Chain) ClosestTransform(query spatialmath.Pose, seed []float64) (spatialmath.Pose, []float64, float64, error) {
	eval, err := c.Evaluate(query, seed)
	if err != nil {
		return nil, nil, 0, err
	}
	return eval.Pose, eval.Values, eval.Cost, nil
}

func (c *Chain) nominal(i int, prev spatialmath.Pose) spatialmath.Pose {
	if i == 0 || prev == nil {
		return c.regions[i].Origin
	}
	return spatialmath.Compose(prev, c.regions[i].Origin)
}

// rollHint is the seeded roll of region i when roll is a chain value, or its fixed roll.
func (c *Chain) rollHint(i int, seedFull []float64) *float64 {
	if idx := c.fullIndex[i][AxisRoll]; idx >= 0 {
		if seedFull == nil {
			return nil
		}
		roll := seedFull[idx]
		return &roll
	}
	roll := c.regions[i].Bounds[AxisRoll].Min
	return &roll
}

func (c *Chain) limit(idx int) referenceframe.Limit {
	ref := c.full[idx]
	return c.regions[ref.region].Bounds[ref.axis]
}

// TransformDifference returns the translation distance plus the rotation angle between two poses.
func TransformDifference(ref, targ spatialmath.Pose) float64 {
	delta := spatialmath.PoseBetween(ref, targ)
	return delta.Point().Norm() + math.Abs(delta.Orientation().AxisAngles().Theta)
}
