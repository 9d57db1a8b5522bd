package cli

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/ml"
	"go.viam.com/compnetx/motionplan/manifold"
	"go.viam.com/compnetx/motionplan/mpnet"
	"go.viam.com/compnetx/referenceframe"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
	defaultScoreName  = "score"
)

// SampleAction is the corresponding Action for 'sample'.
func SampleAction(c *cli.Context) error {
	s, err := loadSession(c)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(s.close)
	if s.cfg.Sampler == nil {
		return errors.Errorf("config %q has no sampler", s.cfg.ConfigFilePath)
	}
	count := c.Int(flagCount)
	if count < 1 {
		return errors.Errorf("--%s must be positive", flagCount)
	}
	parallel := lo.Clamp(c.Int(flagParallel), 1, count)
	tol := c.Float64(flagTol)

	// each worker owns its sampler and constraints
	workers := make([]*sampleWorker, parallel)
	for i := range workers {
		if workers[i], err = s.newSampleWorker(s.logger.Sublogger(fmt.Sprintf("worker%d", i))); err != nil {
			return err
		}
	}
	dim := workers[0].sampler.Dimension()
	start, err := configFromFlag(c, flagStart, dim)
	if err != nil {
		return err
	}
	goal, err := configFromFlag(c, flagGoal, dim)
	if err != nil {
		return err
	}

	records := make([]Record, count)
	g, ctx := errgroup.WithContext(c.Context)
	for w := range workers {
		worker := workers[w]
		first := w
		g.Go(func() error {
			for i := first; i < count; i += parallel {
				if err := ctx.Err(); err != nil {
					return err
				}
				records[i] = worker.sample(ctx, i, start, goal, tol)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printRecords(c, records)
	return writeRecords(c.Path(flagOutput), records)
}

type sampleWorker struct {
	s           *session
	sampler     *mpnet.Sampler
	constraints []*manifold.ChainConstraint
}

func (s *session) newSampleWorker(logger logging.Logger) (*sampleWorker, error) {
	sc := s.cfg.Sampler
	attrs, err := sc.ModelAttributes()
	if err != nil {
		return nil, err
	}
	mcfg, err := sc.MpnetConfig()
	if err != nil {
		return nil, err
	}
	inputName := lo.Ternary(attrs.InputName == "", defaultInputName, attrs.InputName)
	mcfg.InputName = inputName
	proposal, err := ml.LoadMLP(s.resolve(attrs.Proposal), inputName, lo.Ternary(attrs.OutputName == "", defaultOutputName, attrs.OutputName))
	if err != nil {
		return nil, err
	}
	var discriminator ml.Differentiable
	if sc.UseDiscriminator {
		d, err := ml.LoadMLP(s.resolve(attrs.Discriminator), inputName, lo.Ternary(attrs.ScoreName == "", defaultScoreName, attrs.ScoreName))
		if err != nil {
			return nil, err
		}
		discriminator = d
	}
	sampler, err := mpnet.NewSampler(logger, s.provider, s.chains, mcfg, proposal, discriminator,
		mpnet.Encodings{Environment: attrs.Environment, Task: attrs.Task})
	if err != nil {
		return nil, err
	}
	w := &sampleWorker{s: s, sampler: sampler}
	for i, chain := range s.chains {
		if !chain.IsForConstraint() {
			continue
		}
		cc, err := manifold.NewChainConstraint(s.provider, chain, sampler.Dimension(), logger)
		if err != nil {
			return nil, errors.Wrapf(err, "chain %q", s.cfg.Chains[i].Name)
		}
		w.constraints = append(w.constraints, cc)
	}
	return w, nil
}

func (w *sampleWorker) sample(ctx context.Context, idx int, start, goal []float64, tol float64) Record {
	r := Record{Kind: "sample", Index: idx}
	begin := time.Now()
	x, err := w.sampler.Sample(ctx, start, goal)
	r.DurationMS = float64(time.Since(begin).Microseconds()) / 1000
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Config = x
	if r.Point, err = w.s.point(x); err != nil {
		r.Error = err.Error()
		return r
	}
	for _, cc := range w.constraints {
		d, err := cc.Distance(x)
		if err != nil {
			r.Error = err.Error()
			return r
		}
		r.Distance = math.Max(r.Distance, d)
	}
	r.Success = r.Distance <= tol
	return r
}

// point returns the end effector position of the first chain's manipulator, or of manipulator 0.
func (s *session) point(x []float64) ([]float64, error) {
	manip := 0
	if len(s.chains) > 0 {
		manip = s.chains[0].ManipulatorIndex()
	}
	dof := len(s.provider.DoF())
	pose, err := s.provider.ForwardKinematics(referenceframe.FloatsToInputs(x[:dof]), manip)
	if err != nil {
		return nil, err
	}
	p := pose.Point()
	return []float64{p.X, p.Y, p.Z}, nil
}

// resolve returns path relative to the config file's directory.
func (s *session) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(s.cfg.ConfigFilePath), path)
}

func configFromFlag(c *cli.Context, name string, dim int) ([]float64, error) {
	vals := c.Float64Slice(name)
	if len(vals) == 0 {
		return make([]float64, dim), nil
	}
	if len(vals) != dim {
		return nil, errors.Wrapf(referenceframe.NewIncorrectDoFError(len(vals), dim), "--%s", name)
	}
	return vals, nil
}

func formatFloats(vals []float64) string {
	return "[" + strings.Join(lo.Map(vals, func(v float64, _ int) string { return fmt.Sprintf("%.3f", v) }), ", ") + "]"
}

func printRecords(c *cli.Context, records []Record) {
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"#", "Kind", "Chain", "Config", "Distance", "Success", "ms", "Error"})
	for _, r := range records {
		t.AppendRow(table.Row{r.Index, r.Kind, r.Chain, formatFloats(r.Config), fmt.Sprintf("%.3g", r.Distance), r.Success, fmt.Sprintf("%.2f", r.DurationMS), r.Error})
	}
	succeeded := lo.CountBy(records, func(r Record) bool { return r.Success })
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d/%d", succeeded, len(records))})
	t.Render()
}
