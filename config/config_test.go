package config

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/motionplan/mpnet"
	"go.viam.com/compnetx/motionplan/tsr"
	"go.viam.com/compnetx/spatialmath"
	"go.viam.com/compnetx/utils"
)

func readDoor(t *testing.T) *Config {
	t.Helper()
	dir, err := filepath.Abs("testdata")
	test.That(t, err, test.ShouldBeNil)
	t.Setenv("COMPNETX_TESTDATA", dir)
	cfg, err := Read(context.Background(), filepath.Join("testdata", "door.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return cfg
}

func TestReadConfig(t *testing.T) {
	cfg := readDoor(t)
	test.That(t, cfg.ChainNames(), test.ShouldResemble, []string{"door"})
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, filepath.Join("testdata", "door.json"))

	chains, err := cfg.BuildChains()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(chains), test.ShouldEqual, 1)
	door := chains[0]
	test.That(t, door.IsForGoalSampling(), test.ShouldBeTrue)
	test.That(t, door.IsForStartSampling(), test.ShouldBeFalse)
	test.That(t, door.IsForConstraint(), test.ShouldBeTrue)
	n, err := door.NumDOF()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 2)
	region := door.Regions()[0]
	test.That(t, region.Body, test.ShouldEqual, "door_hinge")
	test.That(t, spatialmath.R3VectorAlmostEqual(region.Origin.Point(), r3.Vector{X: 0.4, Z: 0.6}, 1e-9), test.ShouldBeTrue)
	test.That(t, region.Bounds[tsr.AxisYaw].Min, test.ShouldEqual, math.Inf(-1))
	test.That(t, region.Bounds[tsr.AxisX].Max, test.ShouldEqual, 0.1)

	provider, err := cfg.BuildProvider(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	limits := provider.DoF()
	test.That(t, len(limits), test.ShouldEqual, 7)
	test.That(t, limits[0].Max, test.ShouldAlmostEqual, utils.DegToRad(165))

	attrs, err := cfg.Sampler.ModelAttributes()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filepath.IsAbs(attrs.Proposal), test.ShouldBeTrue)
	test.That(t, filepath.Base(attrs.Proposal), test.ShouldEqual, "proposal.json")
	test.That(t, attrs.Environment, test.ShouldResemble, []float64{1, 0, 0, 1})
	test.That(t, attrs.Task, test.ShouldResemble, []float64{0, 1, 0})

	mcfg, err := cfg.Sampler.MpnetConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mcfg.TaskSpaceBounds, test.ShouldBeNil)
	test.That(t, mcfg.InputName, test.ShouldEqual, "")
}

func TestReadInvalidConfig(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join("testdata", "invalid.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, len(multierr.Errors(err)), test.ShouldBeGreaterThanOrEqualTo, 6)
	for _, want := range []string{
		"robot.manipulators.0",
		"listed more than once",
		`unknown ik_solver "newton"`,
		"chains.0",
		"chains.0.regions.0.bounds.x",
		`chain name "a" is not unique`,
		"sampler.calibrations.9",
		"unexpected",
	} {
		test.That(t, err.Error(), test.ShouldContainSubstring, want)
	}

	_, err = Read(context.Background(), filepath.Join("testdata", "missing.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromReader(t *testing.T) {
	t.Setenv("CHAIN_NAME", "drawer")
	const doc = `{
		"robot": {"manipulators": [{"model_file": "arm7.json", "joints": [0, 1, 2, 3, 4, 5, 6], "ik_solver": "combined"}]},
		"chains": [{
			"name": "${CHAIN_NAME}",
			"sample_start": true,
			"regions": [{
				"manipulator": 0,
				"origin": {"translation": {"x": 1}, "orientation": {"yaw": 1.5707963267948966}},
				"bounds": [[-0.2, 0.2], [0, 0], [0, 0], [0, 0], [0, 0], [0, 0]]
			}, {
				"manipulator": 0,
				"bounds": [[0, 0], [-0.1, 0.1], [0, 0], [0, 0], [0, 0], [0, 0]]
			}],
			"mimic": [{"index": 1, "source": 0, "offset": 0.05}]
		}]
	}`
	cfg, err := FromReader(context.Background(), filepath.Join("testdata", "inline.json"), strings.NewReader(doc), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ChainNames(), test.ShouldResemble, []string{"drawer"})
	test.That(t, cfg.Sampler, test.ShouldBeNil)

	chains, err := cfg.BuildChains()
	test.That(t, err, test.ShouldBeNil)
	drawer := chains[0]
	test.That(t, drawer.MimicBody, test.ShouldEqual, tsr.NoBody)
	test.That(t, drawer.NumMimicDOF(), test.ShouldEqual, 1)
	n, err := drawer.NumDOF()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
	expected := spatialmath.NewPose(r3.Vector{X: 1}, &spatialmath.EulerAngles{Yaw: math.Pi / 2})
	test.That(t, spatialmath.PoseAlmostEqual(drawer.Regions()[0].Origin, expected), test.ShouldBeTrue)

	// the model file is found next to the config
	_, err = cfg.BuildProvider(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = FromReader(context.Background(), "", strings.NewReader(`{"robots": {}}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "robots")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FromReader(ctx, "", strings.NewReader(doc), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestMimicConfigErrors(t *testing.T) {
	cc := ChainConfig{
		Name: "bad",
		Regions: []RegionConfig{{Bounds: [6]BoundConfig{
			Bound(-1, 1), Bound(0, 0), Bound(0, 0), Bound(0, 0), Bound(0, 0), Bound(0, 0),
		}}},
		Mimic: []tsr.Mimic{{Index: 0, Source: 0}},
	}
	test.That(t, cc.Validate("chains.0"), test.ShouldBeNil)
	_, err := cc.Chain()
	test.That(t, err, test.ShouldNotBeNil)

	cc.Regions = append(cc.Regions, RegionConfig{Manipulator: 1})
	err = cc.Validate("chains.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "one manipulator")
}

func TestSamplerConfig(t *testing.T) {
	bounds := mpnet.DefaultTaskSpaceBounds()
	var tsb [6][2]float64
	for i, b := range bounds {
		tsb[i] = [2]float64{b.Min, b.Max}
	}
	tsb[0] = [2]float64{-1, 1}
	sc := &SamplerConfig{
		TaskSpaceBounds: &tsb,
		Calibrations:    map[int]mpnet.Calibration{9: {Coefficient: 0.02, Threshold: 1, Remap: []int{0, 1, 2, 3, 4, 5, 6, 7, 8}}},
		Attributes:      AttributeMap{"proposal": "p.json", "input_name": "x", "score_name": "score"},
	}
	test.That(t, sc.Validate("sampler"), test.ShouldBeNil)
	mcfg, err := sc.MpnetConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mcfg.TaskSpaceBounds[0].Max, test.ShouldEqual, 1.)
	test.That(t, mcfg.TaskSpaceBounds[5].Max, test.ShouldEqual, 3.142)
	test.That(t, mcfg.InputName, test.ShouldEqual, "x")
	test.That(t, mcfg.ScoreName, test.ShouldEqual, "score")
	test.That(t, mcfg.Calibrations[9].Coefficient, test.ShouldEqual, 0.02)

	sc.UseDiscriminator = true
	tsb[1] = [2]float64{1, -1}
	err = sc.Validate("sampler")
	test.That(t, len(multierr.Errors(err)), test.ShouldEqual, 2)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sampler.task_space_bounds.y")
	test.That(t, err.Error(), test.ShouldContainSubstring, "discriminator")
}

func TestDecodeAttributes(t *testing.T) {
	attrs, err := DecodeAttributes[ModelAttributes](nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, attrs, test.ShouldResemble, ModelAttributes{})

	am := AttributeMap{"proposal": "net.json", "environment": []interface{}{1.0, 2.0}}
	test.That(t, am.Has("proposal"), test.ShouldBeTrue)
	test.That(t, am.Has("task"), test.ShouldBeFalse)
	attrs, err = DecodeAttributes[ModelAttributes](am)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, attrs.Proposal, test.ShouldEqual, "net.json")
	test.That(t, attrs.Environment, test.ShouldResemble, []float64{1, 2})

	_, err = DecodeAttributes[ModelAttributes](AttributeMap{"proposal": 3.5})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = DecodeAttributes[ModelAttributes](AttributeMap{"zeta": 1, "alpha": 2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `["alpha" "zeta"]`)
}

func TestSchema(t *testing.T) {
	out, err := json.Marshal(Schema())
	test.That(t, err, test.ShouldBeNil)
	for _, field := range []string{"chains", "manipulators", "task_space_bounds", "use_discriminator", "mimic"} {
		test.That(t, string(out), test.ShouldContainSubstring, `"`+field+`"`)
	}
}
