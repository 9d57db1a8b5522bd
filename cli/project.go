package cli

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/compnetx/motionplan/manifold"
	"go.viam.com/compnetx/referenceframe"
)

// ProjectAction is the corresponding Action for 'project'.
func ProjectAction(c *cli.Context) error {
	s, err := loadSession(c)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(s.close)
	count := c.Int(flagCount)
	if count < 1 {
		return errors.Errorf("--%s must be positive", flagCount)
	}
	only := c.String(flagChain)
	tol := c.Float64(flagTol)
	maxIter := c.Int(flagMaxIter)
	//nolint:gosec
	rng := rand.New(rand.NewSource(c.Int64(flagSeed)))
	limits := s.provider.DoF()

	var records []Record
	found := false
	for i, chain := range s.chains {
		name := s.cfg.Chains[i].Name
		if only != "" && name != only {
			continue
		}
		found = true
		if !chain.IsForConstraint() {
			s.logger.Debugw("skipping chain without constrain set", "chain", name)
			continue
		}
		cc, err := manifold.NewChainConstraint(s.provider, chain, len(limits), s.logger)
		if err != nil {
			return errors.Wrapf(err, "chain %q", name)
		}
		for n := 0; n < count; n++ {
			r := Record{Kind: "project", Chain: name, Index: n}
			begin := time.Now()
			x, err := manifold.Project(c.Context, cc, randomInputs(rng, limits), tol, maxIter)
			r.DurationMS = float64(time.Since(begin).Microseconds()) / 1000
			if x != nil {
				r.Config = x
				if d, derr := cc.Distance(x); derr == nil {
					r.Distance = d
				}
				if p, perr := s.point(x); perr == nil {
					r.Point = p
				}
			}
			if err != nil {
				if ctxErr := c.Context.Err(); ctxErr != nil {
					return ctxErr
				}
				r.Error = err.Error()
			}
			r.Success = err == nil
			records = append(records, r)
		}
		s.logger.Debugw("projected onto chain", "chain", name, "constraint_calls", cc.Calls())
	}
	if only != "" && !found {
		return errors.Errorf("no chain named %q", only)
	}

	printRecords(c, records)
	return writeRecords(c.Path(flagOutput), records)
}

// randomInputs draws joints uniformly within limits, treating unbounded sides as ±π.
func randomInputs(rng *rand.Rand, limits []referenceframe.Limit) []float64 {
	x := make([]float64, len(limits))
	for i, l := range limits {
		lower, upper := math.Max(l.Min, -math.Pi), math.Min(l.Max, math.Pi)
		x[i] = lower + rng.Float64()*(upper-lower)
	}
	return x
}
