// Package config defines the JSON configuration of a robot, the region chains attached to it and the sampler.
package config

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/compnetx/kinematics"
	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/motionplan/ik"
	"go.viam.com/compnetx/motionplan/mpnet"
	"go.viam.com/compnetx/motionplan/tsr"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

var axisFields = [6]string{"x", "y", "z", "roll", "pitch", "yaw"}

// A Config describes a robot, its region chains and how samples are proposed for it.
type Config struct {
	Robot   RobotConfig    `json:"robot"`
	Chains  []ChainConfig  `json:"chains"`
	Sampler *SamplerConfig `json:"sampler,omitempty"`

	// ConfigFilePath is where the config was read from; relative paths inside it are resolved against its directory.
	ConfigFilePath string `json:"-"`
}

// Validate returns every problem with the config.
func (c *Config) Validate() error {
	var allErrs error
	allErrs = multierr.Append(allErrs, c.Robot.Validate("robot"))
	for idx, chain := range c.Chains {
		allErrs = multierr.Append(allErrs, chain.Validate(fmt.Sprintf("%s.%d", "chains", idx)))
	}
	for _, name := range lo.FindDuplicates(c.ChainNames()) {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError("chains", errors.Errorf("chain name %q is not unique", name)))
	}
	if c.Sampler != nil {
		allErrs = multierr.Append(allErrs, c.Sampler.Validate("sampler"))
	}
	return allErrs
}

// ChainNames returns the names of the configured chains in order.
func (c *Config) ChainNames() []string {
	return lo.Map(c.Chains, func(cc ChainConfig, _ int) string { return cc.Name })
}

// BuildChains returns an initialized chain for each configured chain, in order.
func (c *Config) BuildChains() ([]*tsr.Chain, error) {
	chains := make([]*tsr.Chain, 0, len(c.Chains))
	for _, cc := range c.Chains {
		chain, err := cc.Chain()
		if err != nil {
			return nil, errors.Wrapf(err, "chain %q", cc.Name)
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// BuildProvider returns a kinematics provider for the configured robot.
func (c *Config) BuildProvider(logger logging.Logger) (*kinematics.ModelProvider, error) {
	return c.Robot.Provider(filepath.Dir(c.ConfigFilePath), logger)
}

// PoseConfig is a translation in meters and a roll-pitch-yaw orientation in radians.
type PoseConfig struct {
	Translation r3.Vector                `json:"translation"`
	Orientation *spatialmath.EulerAngles `json:"orientation,omitempty"`
}

// Pose returns the configured pose; a nil config is the zero pose.
func (pc *PoseConfig) Pose() spatialmath.Pose {
	if pc == nil {
		return spatialmath.NewZeroPose()
	}
	if pc.Orientation == nil {
		return spatialmath.NewPoseFromPoint(pc.Translation)
	}
	return spatialmath.NewPose(pc.Translation, pc.Orientation)
}

// BoundConfig is a [min, max] pair. A null entry is unbounded on that side.
type BoundConfig [2]*float64

// Limit returns the bound as a limit, using infinities for unset sides.
func (bc BoundConfig) Limit() referenceframe.Limit {
	lim := referenceframe.Limit{Min: math.Inf(-1), Max: math.Inf(1)}
	if bc[0] != nil {
		lim.Min = *bc[0]
	}
	if bc[1] != nil {
		lim.Max = *bc[1]
	}
	return lim
}

// Bound returns a finite bound config.
func Bound(lower, upper float64) BoundConfig {
	return BoundConfig{&lower, &upper}
}

// RegionConfig describes one region of a chain. Bounds are given in x y z roll pitch yaw order; an axis with min
// equal to max is fixed.
type RegionConfig struct {
	Manipulator int            `json:"manipulator"`
	Body        string         `json:"body,omitempty"`
	Origin      *PoseConfig    `json:"origin,omitempty"`
	Offset      *PoseConfig    `json:"offset,omitempty"`
	Bounds      [6]BoundConfig `json:"bounds"`
}

// Validate ensures the region's bounds are ordered.
func (rc *RegionConfig) Validate(path string) error {
	var allErrs error
	if rc.Manipulator < 0 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path, errors.New("manipulator cannot be negative")))
	}
	for axis, b := range rc.Bounds {
		lim := b.Limit()
		if math.IsNaN(lim.Min) || math.IsNaN(lim.Max) || lim.Min > lim.Max {
			allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(
				fmt.Sprintf("%s.bounds.%s", path, axisFields[axis]),
				errors.Errorf("min %v is greater than max %v", lim.Min, lim.Max),
			))
		}
	}
	return allErrs
}

// Region returns the configured region.
func (rc *RegionConfig) Region() (*tsr.Region, error) {
	var bounds tsr.Bounds
	for axis, b := range rc.Bounds {
		bounds[axis] = b.Limit()
	}
	r, err := tsr.NewRegion(rc.Manipulator, rc.Origin.Pose(), rc.Offset.Pose(), bounds)
	if err != nil {
		return nil, err
	}
	if rc.Body != "" {
		r.Body = rc.Body
	}
	return r, nil
}

// ChainConfig describes a chain of regions and what it is used for.
type ChainConfig struct {
	Name        string         `json:"name"`
	SampleStart bool           `json:"sample_start,omitempty"`
	SampleGoal  bool           `json:"sample_goal,omitempty"`
	Constrain   bool           `json:"constrain,omitempty"`
	Regions     []RegionConfig `json:"regions"`
	MimicBody   string         `json:"mimic_body,omitempty"`
	Mimic       []tsr.Mimic    `json:"mimic,omitempty"`
}

// Validate ensures all parts of the chain config are valid.
func (cc *ChainConfig) Validate(path string) error {
	var allErrs error
	if cc.Name == "" {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationFieldRequiredError(path, "name"))
	}
	if len(cc.Regions) == 0 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationFieldRequiredError(path, "regions"))
	}
	for idx := range cc.Regions {
		allErrs = multierr.Append(allErrs, cc.Regions[idx].Validate(fmt.Sprintf("%s.%s.%d", path, "regions", idx)))
	}
	manips := lo.Uniq(lo.Map(cc.Regions, func(rc RegionConfig, _ int) int { return rc.Manipulator }))
	if len(manips) > 1 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path,
			errors.Errorf("regions must share one manipulator, got %v", manips)))
	}
	return allErrs
}

// Chain returns the configured chain, initialized.
func (cc *ChainConfig) Chain() (*tsr.Chain, error) {
	regions := make([]*tsr.Region, 0, len(cc.Regions))
	for idx := range cc.Regions {
		r, err := cc.Regions[idx].Region()
		if err != nil {
			return nil, errors.Wrapf(err, "region %d", idx)
		}
		regions = append(regions, r)
	}
	c, err := tsr.NewChain(tsr.Flags{SampleStart: cc.SampleStart, SampleGoal: cc.SampleGoal, Constrain: cc.Constrain}, regions...)
	if err != nil {
		return nil, err
	}
	if len(cc.Mimic) > 0 || cc.MimicBody != "" {
		body := cc.MimicBody
		if body == "" {
			body = tsr.NoBody
		}
		c.SetMimic(body, cc.Mimic...)
		if err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ManipulatorConfig describes one kinematic model of the robot and which robot joints drive it. The model is
// either given inline or read from ModelFile.
type ManipulatorConfig struct {
	Model        *referenceframe.ModelConfigJSON `json:"model,omitempty"`
	ModelFile    string                          `json:"model_file,omitempty"`
	Joints       []int                           `json:"joints"`
	IKIterations int                             `json:"ik_iterations,omitempty"`
	IKSolver     string                          `json:"ik_solver,omitempty" jsonschema:"enum=jacobian,enum=combined"`
	IKWorkers    int                             `json:"ik_workers,omitempty"`
}

// IK solvers a manipulator may use. The combined solver runs the jacobian solver alongside IKWorkers-1 nlopt
// solvers.
const (
	IKSolverJacobian = "jacobian"
	IKSolverCombined = "combined"

	defaultIKWorkers = 2
)

// Validate ensures the manipulator has exactly one model source.
func (mc *ManipulatorConfig) Validate(path string) error {
	var allErrs error
	switch {
	case mc.Model == nil && mc.ModelFile == "":
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationFieldRequiredError(path, "model"))
	case mc.Model != nil && mc.ModelFile != "":
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path, errors.New("only one of model and model_file may be set")))
	}
	if len(mc.Joints) == 0 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationFieldRequiredError(path, "joints"))
	}
	if dups := lo.FindDuplicates(mc.Joints); len(dups) > 0 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path, errors.Errorf("joints %v listed more than once", dups)))
	}
	if mc.IKIterations < 0 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path, errors.New("ik_iterations cannot be negative")))
	}
	switch mc.IKSolver {
	case "", IKSolverJacobian, IKSolverCombined:
	default:
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path, errors.Errorf("unknown ik_solver %q", mc.IKSolver)))
	}
	if mc.IKWorkers < 0 {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(path, errors.New("ik_workers cannot be negative")))
	}
	return allErrs
}

func (mc *ManipulatorConfig) solver(m *referenceframe.SimpleModel, logger logging.Logger) (ik.Solver, error) {
	if mc.IKSolver != IKSolverCombined {
		return ik.CreateJacobianIKSolver(m, logger, mc.IKIterations), nil
	}
	workers := mc.IKWorkers
	if workers == 0 {
		workers = defaultIKWorkers
	}
	return ik.CreateCombinedIKSolver(m, logger, workers, mc.IKIterations)
}

func (mc *ManipulatorConfig) model(dir string) (*referenceframe.SimpleModel, error) {
	if mc.Model != nil {
		return mc.Model.ParseConfig("")
	}
	path := mc.ModelFile
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	return referenceframe.ParseModelJSONFile(path, "")
}

// RobotConfig lists the robot's manipulators. Together their joints cover every robot joint.
type RobotConfig struct {
	Manipulators []ManipulatorConfig `json:"manipulators"`
}

// Validate ensures all parts of the robot config are valid.
func (rc *RobotConfig) Validate(path string) error {
	if len(rc.Manipulators) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "manipulators")
	}
	var allErrs error
	for idx := range rc.Manipulators {
		allErrs = multierr.Append(allErrs, rc.Manipulators[idx].Validate(fmt.Sprintf("%s.%s.%d", path, "manipulators", idx)))
	}
	return allErrs
}

// Provider returns a kinematics provider for the robot, resolving relative model files against dir.
func (rc *RobotConfig) Provider(dir string, logger logging.Logger) (*kinematics.ModelProvider, error) {
	manipulators := make([]kinematics.Manipulator, 0, len(rc.Manipulators))
	for idx := range rc.Manipulators {
		mc := &rc.Manipulators[idx]
		m, err := mc.model(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "manipulator %d", idx)
		}
		solver, err := mc.solver(m, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "manipulator %d", idx)
		}
		manipulators = append(manipulators, kinematics.Manipulator{
			Model:  m,
			Joints: append([]int{}, mc.Joints...),
			Solver: solver,
		})
	}
	return kinematics.NewModelProvider(logger, manipulators...)
}

// SamplerConfig configures a sampler. Calibrations are keyed by ambient dimension and replace the defaults for
// that dimension. Model specific settings are carried in Attributes.
type SamplerConfig struct {
	TaskSpaceBounds  *[6][2]float64            `json:"task_space_bounds,omitempty"`
	Calibrations     map[int]mpnet.Calibration `json:"calibrations,omitempty"`
	UseDiscriminator bool                      `json:"use_discriminator,omitempty"`
	Attributes       AttributeMap              `json:"attributes,omitempty"`
}

// ModelAttributes are the sampler attributes naming the networks and the query encodings.
type ModelAttributes struct {
	Proposal      string    `json:"proposal"`
	Discriminator string    `json:"discriminator,omitempty"`
	InputName     string    `json:"input_name,omitempty"`
	OutputName    string    `json:"output_name,omitempty"`
	ScoreName     string    `json:"score_name,omitempty"`
	Environment   []float64 `json:"environment,omitempty"`
	Task          []float64 `json:"task,omitempty"`
}

// Validate ensures all parts of the sampler config are valid.
func (sc *SamplerConfig) Validate(path string) error {
	var allErrs error
	if sc.TaskSpaceBounds != nil {
		for axis, b := range sc.TaskSpaceBounds {
			if !(b[0] < b[1]) || math.IsInf(b[0], 0) || math.IsInf(b[1], 0) {
				allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(
					fmt.Sprintf("%s.task_space_bounds.%s", path, axisFields[axis]),
					errors.Errorf("bounds [%v, %v] must be finite with min below max", b[0], b[1]),
				))
			}
		}
	}
	dims := lo.Keys(sc.Calibrations)
	sort.Ints(dims)
	for _, dim := range dims {
		if err := sc.Calibrations[dim].Validate(dim); err != nil {
			allErrs = multierr.Append(allErrs, utils.NewConfigValidationError(fmt.Sprintf("%s.calibrations.%d", path, dim), err))
		}
	}
	attrs, err := sc.ModelAttributes()
	if err != nil {
		return multierr.Append(allErrs, utils.NewConfigValidationError(path+".attributes", err))
	}
	if attrs.Proposal == "" {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationFieldRequiredError(path+".attributes", "proposal"))
	}
	if sc.UseDiscriminator && attrs.Discriminator == "" {
		allErrs = multierr.Append(allErrs, utils.NewConfigValidationFieldRequiredError(path+".attributes", "discriminator"))
	}
	return allErrs
}

// ModelAttributes decodes the attributes.
func (sc *SamplerConfig) ModelAttributes() (ModelAttributes, error) {
	return DecodeAttributes[ModelAttributes](sc.Attributes)
}

// MpnetConfig returns the sampler construction settings.
func (sc *SamplerConfig) MpnetConfig() (mpnet.Config, error) {
	attrs, err := sc.ModelAttributes()
	if err != nil {
		return mpnet.Config{}, err
	}
	cfg := mpnet.Config{
		Calibrations: sc.Calibrations,
		InputName:    attrs.InputName,
		OutputName:   attrs.OutputName,
		ScoreName:    attrs.ScoreName,
	}
	if sc.TaskSpaceBounds != nil {
		var bounds [6]referenceframe.Limit
		for axis, b := range sc.TaskSpaceBounds {
			bounds[axis] = referenceframe.Limit{Min: b[0], Max: b[1]}
		}
		cfg.TaskSpaceBounds = &bounds
	}
	return cfg, nil
}
