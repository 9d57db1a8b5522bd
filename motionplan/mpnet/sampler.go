package mpnet

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/compnetx/kinematics"
	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/ml"
	"go.viam.com/compnetx/motionplan/ik"
	"go.viam.com/compnetx/motionplan/tsr"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/utils"
)

const (
	defaultInputName = "input"
)

// Config holds the sampler's calibration data. The zero value uses the default task space bounds and calibrations.
type Config struct {
	// TaskSpaceBounds are the bounds of the network slots following the robot's joints.
	TaskSpaceBounds *[taskSpaceSlots]referenceframe.Limit
	// Calibrations overrides entries of DefaultCalibrations by ambient dimension.
	Calibrations map[int]Calibration
	// InputName is the name of the tensor fed to the models.
	InputName string
	// OutputName selects the proposal model's output tensor. Empty selects its only output.
	OutputName string
	// ScoreName selects the discriminator's score tensor. Empty selects its only output.
	ScoreName string
}

// Encodings are the per query environment and task vectors prepended to every network input.
type Encodings struct {
	Environment []float64
	Task        []float64
}

// Sampler proposes ambient configurations, robot joints followed by the values of every chain, from a learned
// model and reconciles them with the chains through inverse kinematics.
//
// A Sampler is not safe for concurrent use; the encodings it was built with are never written and may be shared.
type Sampler struct {
	provider      kinematics.Provider
	chains        []*tsr.Chain
	chainDOF      []int
	robotDOF      int
	dim           int
	lower, upper  [NetworkWidth]float64
	scale         [NetworkWidth]float64
	calibration   Calibration
	proposal      ml.Model
	discriminator ml.Differentiable
	env, task     []float64
	inputName     string
	outputName    string
	scoreName     string
	logger        logging.Logger
}

// NewSampler returns a sampler for a robot whose joints together with the task space bounds fill the network's
// slots. The ambient dimension, the robot's joints plus every chain's values, selects the calibration.
// discriminator may be nil.
func NewSampler(
	logger logging.Logger,
	provider kinematics.Provider,
	chains []*tsr.Chain,
	cfg Config,
	proposal ml.Model,
	discriminator ml.Differentiable,
	enc Encodings,
) (*Sampler, error) {
	if proposal == nil {
		return nil, errors.New("sampler needs a proposal model")
	}
	robotLimits := provider.DoF()
	if len(robotLimits)+taskSpaceSlots != NetworkWidth {
		return nil, errors.Wrapf(NewInvalidDimensionError(len(robotLimits)),
			"robot joints and %d task space bounds must fill %d network slots", taskSpaceSlots, NetworkWidth)
	}

	s := &Sampler{
		provider:      provider,
		chains:        chains,
		robotDOF:      len(robotLimits),
		dim:           len(robotLimits),
		proposal:      proposal,
		discriminator: discriminator,
		env:           append([]float64{}, enc.Environment...),
		task:          append([]float64{}, enc.Task...),
		inputName:     cfg.InputName,
		outputName:    cfg.OutputName,
		scoreName:     cfg.ScoreName,
		logger:        logger,
	}
	if s.inputName == "" {
		s.inputName = defaultInputName
	}
	for i, c := range chains {
		n, err := c.NumDOF()
		if err != nil {
			return nil, errors.Wrapf(err, "chain %d", i)
		}
		s.chainDOF = append(s.chainDOF, n)
		s.dim += n
	}

	calibrations := DefaultCalibrations()
	for dim, cal := range cfg.Calibrations {
		calibrations[dim] = cal
	}
	cal, ok := calibrations[s.dim]
	if !ok {
		return nil, NewInvalidDimensionError(s.dim)
	}
	if err := cal.Validate(s.dim); err != nil {
		return nil, err
	}
	s.calibration = Calibration{Coefficient: cal.Coefficient, Threshold: cal.Threshold, Remap: append([]int{}, cal.Remap...)}

	taskBounds := DefaultTaskSpaceBounds()
	if cfg.TaskSpaceBounds != nil {
		taskBounds = *cfg.TaskSpaceBounds
	}
	slotLimits := append(append([]referenceframe.Limit{}, robotLimits...), taskBounds[:]...)
	for i, lim := range slotLimits {
		if math.IsInf(lim.Min, 0) || math.IsInf(lim.Max, 0) || math.IsNaN(lim.Min) || math.IsNaN(lim.Max) || lim.Min >= lim.Max {
			return nil, errors.Errorf("network slot %d has unusable bounds [%v, %v]", i, lim.Min, lim.Max)
		}
		s.lower[i] = lim.Min
		s.upper[i] = lim.Max
		s.scale[i] = lim.Max - lim.Min
	}

	logger.Infow("created sampler",
		"dimension", s.dim,
		"robot_dof", s.robotDOF,
		"chains", len(chains),
		"coefficient", cal.Coefficient,
		"threshold", cal.Threshold,
		"discriminator", discriminator != nil,
	)
	return s, nil
}

// Dimension returns the length of the ambient configurations the sampler produces.
func (s *Sampler) Dimension() int { return s.dim }

// Calibration returns the calibration selected for the ambient dimension.
func (s *Sampler) Calibration() Calibration { return s.calibration }

// Bounds returns the bounds every ambient dimension is clamped to. Ambient dimension j takes the bounds of network
// slot j regardless of the remap, so a 9 dimensional task clamps its chain values to the x and y translation bounds.
func (s *Sampler) Bounds() []referenceframe.Limit {
	out := make([]referenceframe.Limit, s.dim)
	for j := range out {
		out[j] = referenceframe.Limit{Min: s.lower[j], Max: s.upper[j]}
	}
	return out
}

// Scale returns the factor converting each ambient dimension between network and native units.
func (s *Sampler) Scale() []float64 {
	out := make([]float64, s.dim)
	for j, slot := range s.calibration.Remap {
		out[j] = s.scale[slot]
	}
	return out
}

// Sample returns a proposal for the start and goal configurations reconciled with every chain.
func (s *Sampler) Sample(ctx context.Context, start, goal []float64) ([]float64, error) {
	proposal, err := s.Propose(ctx, start, goal)
	if err != nil {
		return nil, err
	}
	return s.Handshake(ctx, proposal)
}

// Propose runs the proposal model, and the discriminator if present, for the start and goal configurations and
// returns the result in native units clamped to the ambient bounds.
func (s *Sampler) Propose(ctx context.Context, start, goal []float64) ([]float64, error) {
	if len(start) != s.dim {
		return nil, errors.Wrap(referenceframe.NewIncorrectDoFError(len(start), s.dim), "start")
	}
	if len(goal) != s.dim {
		return nil, errors.Wrap(referenceframe.NewIncorrectDoFError(len(goal), s.dim), "goal")
	}
	input := ml.Concat(s.env, s.task, s.normalize(start), s.normalize(goal))
	outputs, err := s.proposal.Infer(ctx, ml.Tensors{s.inputName: ml.NewRowTensor(input)})
	if err != nil {
		return nil, errors.Wrap(err, "proposal model")
	}
	raw, err := ml.TensorFloats(outputs, s.outputName)
	if err != nil {
		return nil, errors.Wrap(err, "proposal model")
	}
	if len(raw) != NetworkWidth {
		return nil, errors.Errorf("proposal model returned %d values, expected %d", len(raw), NetworkWidth)
	}

	if s.discriminator != nil {
		if err := s.refine(ctx, raw); err != nil {
			return nil, err
		}
	}

	out := make([]float64, s.dim)
	for j, slot := range s.calibration.Remap {
		out[j] = raw[slot] * s.scale[slot]
	}
	s.clamp(out)
	return out, nil
}

// refine takes one step against the discriminator's gradient with respect to the proposal when its score is above
// the calibrated threshold.
func (s *Sampler) refine(ctx context.Context, raw []float64) error {
	input := ml.Concat(s.env, s.task, raw)
	outputs, gradients, err := s.discriminator.Gradient(ctx, ml.Tensors{s.inputName: ml.NewRowTensor(input)})
	if err != nil {
		return errors.Wrap(err, "discriminator model")
	}
	scores, err := ml.TensorFloats(outputs, s.scoreName)
	if err != nil {
		return errors.Wrap(err, "discriminator model")
	}
	if len(scores) == 0 {
		return errors.New("discriminator model returned no score")
	}
	if scores[0] <= s.calibration.Threshold {
		return nil
	}
	grad, err := ml.TensorFloats(gradients, s.inputName)
	if err != nil {
		return errors.Wrap(err, "discriminator gradient")
	}
	if len(grad) != len(input) {
		return errors.Errorf("discriminator gradient has %d values, expected %d", len(grad), len(input))
	}
	grad = grad[len(grad)-NetworkWidth:]
	for i := range raw {
		raw[i] -= s.calibration.Coefficient * grad[i]
	}
	s.logger.Debugw("discriminator step", "score", scores[0], "threshold", s.calibration.Threshold)
	return nil
}

// Handshake reconciles an ambient configuration with each chain in order. The end effector pose of the current
// joints is projected onto the chain and inverse kinematics moves the joints to reach it, so later chains see the
// joints chosen for earlier ones. A chain whose projected pose cannot be reached keeps its values and leaves the
// joints unchanged.
func (s *Sampler) Handshake(ctx context.Context, sample []float64) ([]float64, error) {
	if len(sample) != s.dim {
		return nil, referenceframe.NewIncorrectDoFError(len(sample), s.dim)
	}
	out := append([]float64{}, sample...)
	robot := referenceframe.FloatsToInputs(out[:s.robotDOF])
	offset := s.robotDOF
	for i, c := range s.chains {
		segment := out[offset : offset+s.chainDOF[i]]
		offset += s.chainDOF[i]
		manip := c.ManipulatorIndex()

		pose, err := s.provider.ForwardKinematics(robot, manip)
		if err != nil {
			return nil, kinematics.NewKinematicsFailureError(err)
		}
		closest, values, cost, err := c.ClosestTransform(pose, segment)
		if err != nil {
			return nil, errors.Wrapf(err, "chain %d", i)
		}
		solution, err := s.provider.InverseKinematics(ctx, closest, manip, robot)
		if err != nil {
			if errors.Is(err, ik.ErrNoSolution) {
				s.logger.Debugw("chain pose unreachable, keeping proposal", "chain", i, "cost", cost)
				continue
			}
			return nil, err
		}
		if len(solution) != s.robotDOF {
			return nil, errors.Wrapf(referenceframe.NewIncorrectDoFError(len(solution), s.robotDOF), "inverse kinematics for chain %d", i)
		}
		robot = solution
		copy(segment, values)
	}
	copy(out, referenceframe.InputsToFloats(robot))
	s.clamp(out)
	return out, nil
}

func (s *Sampler) normalize(state []float64) []float64 {
	out := make([]float64, NetworkWidth)
	for j, slot := range s.calibration.Remap {
		out[slot] = state[j] / s.scale[slot]
	}
	return out
}

func (s *Sampler) clamp(x []float64) {
	for j := range x {
		x[j] = utils.Clamp(x[j], s.lower[j], s.upper[j])
	}
}
