package tsr

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
	"go.viam.com/compnetx/utils"
)

// Serialize writes the chain as whitespace separated tokens:
//
//	start goal constrain numRegions region... mimicBody numMimic (index source offset)...
//
// where each region is
//
//	manipulator body origin(12) offset(12) bounds(12)
//
// Poses are written as their rotation matrix in column major order followed by the translation, and bounds as
// min max pairs in x y z roll pitch yaw order.
func (c *Chain) Serialize(w io.Writer) error {
	tokens := []string{
		formatBool(c.SampleStart),
		formatBool(c.SampleGoal),
		formatBool(c.Constrain),
		strconv.Itoa(len(c.regions)),
	}
	for _, r := range c.regions {
		body := r.Body
		if body == "" {
			body = NoBody
		}
		tokens = append(tokens, strconv.Itoa(r.Manipulator), body)
		tokens = appendPose(tokens, r.Origin)
		tokens = appendPose(tokens, r.Offset)
		for _, lim := range r.Bounds {
			tokens = append(tokens, formatFloat(lim.Min), formatFloat(lim.Max))
		}
	}
	mimicBody := c.MimicBody
	if mimicBody == "" {
		mimicBody = NoBody
	}
	tokens = append(tokens, mimicBody, strconv.Itoa(len(c.mimic)))
	for _, m := range c.mimic {
		tokens = append(tokens, strconv.Itoa(m.Index), strconv.Itoa(m.Source), formatFloat(m.Offset))
	}
	_, err := io.WriteString(w, strings.Join(tokens, " "))
	return err
}

// Deserialize reads a chain written by Serialize and initializes it.
func Deserialize(r io.Reader) (*Chain, error) {
	tr := &tokenReader{scanner: bufio.NewScanner(r)}
	tr.scanner.Split(bufio.ScanWords)

	c := &Chain{}
	c.SampleStart = tr.nextBool("sample start flag")
	c.SampleGoal = tr.nextBool("sample goal flag")
	c.Constrain = tr.nextBool("constrain flag")
	numRegions := tr.nextInt("region count")
	for i := 0; i < numRegions && tr.err == nil; i++ {
		region := &Region{}
		region.Manipulator = tr.nextInt("manipulator index")
		region.Body = tr.next("body name")
		region.Origin = tr.nextPose("origin")
		region.Offset = tr.nextPose("offset")
		for axis := 0; axis < numAxes; axis++ {
			region.Bounds[axis] = referenceframe.Limit{
				Min: tr.nextFloat(AxisName(axis) + " min"),
				Max: tr.nextFloat(AxisName(axis) + " max"),
			}
		}
		c.AddRegion(region)
	}
	mimicBody := tr.next("mimic body name")
	numMimic := tr.nextInt("mimic count")
	var mimic []Mimic
	for i := 0; i < numMimic && tr.err == nil; i++ {
		mimic = append(mimic, Mimic{
			Index:  tr.nextInt("mimic index"),
			Source: tr.nextInt("mimic source"),
			Offset: tr.nextFloat("mimic offset"),
		})
	}
	if tr.err != nil {
		return nil, tr.err
	}
	c.SetMimic(mimicBody, mimic...)
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	return c, nil
}

// String prints a table of the regions with their bounds.
func (c *Chain) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Manip", "Body", "Origin", "X", "Y", "Z", "Roll", "Pitch", "Yaw"})
	for i, r := range c.regions {
		row := table.Row{fmt.Sprintf("%d", i), r.Manipulator, r.Body, formatPoseShort(r.Origin)}
		for axis := 0; axis < numAxes; axis++ {
			lim := r.Bounds[axis]
			if axis >= AxisRoll {
				row = append(row, fmt.Sprintf("[%.1f, %.1f]", utils.RadToDeg(lim.Min), utils.RadToDeg(lim.Max)))
			} else {
				row = append(row, fmt.Sprintf("[%.3f, %.3f]", lim.Min, lim.Max))
			}
		}
		t.AppendRow(row)
	}
	return t.Render()
}

func formatPoseShort(p spatialmath.Pose) string {
	if p == nil {
		return ""
	}
	pt := p.Point()
	return fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", pt.X, pt.Y, pt.Z)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func appendPose(tokens []string, p spatialmath.Pose) []string {
	if p == nil {
		p = spatialmath.NewZeroPose()
	}
	rm := p.Orientation().RotationMatrix()
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			tokens = append(tokens, formatFloat(rm.At(row, col)))
		}
	}
	pt := p.Point()
	return append(tokens, formatFloat(pt.X), formatFloat(pt.Y), formatFloat(pt.Z))
}

// tokenReader reads typed tokens, keeping the first error.
type tokenReader struct {
	scanner *bufio.Scanner
	err     error
}

func (tr *tokenReader) next(what string) string {
	if tr.err != nil {
		return ""
	}
	if !tr.scanner.Scan() {
		tr.err = tr.scanner.Err()
		if tr.err == nil {
			tr.err = errors.Errorf("unexpected end of input reading %s", what)
		}
		return ""
	}
	return tr.scanner.Text()
}

func (tr *tokenReader) nextInt(what string) int {
	tok := tr.next(what)
	if tr.err != nil {
		return 0
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		tr.err = errors.Wrapf(err, "reading %s", what)
	}
	return v
}

func (tr *tokenReader) nextFloat(what string) float64 {
	tok := tr.next(what)
	if tr.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		tr.err = errors.Wrapf(err, "reading %s", what)
	}
	return v
}

func (tr *tokenReader) nextBool(what string) bool {
	tok := tr.next(what)
	if tr.err != nil {
		return false
	}
	v, err := strconv.ParseBool(tok)
	if err != nil {
		tr.err = errors.Wrapf(err, "reading %s", what)
	}
	return v
}

func (tr *tokenReader) nextPose(what string) spatialmath.Pose {
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = tr.nextFloat(what)
	}
	if tr.err != nil {
		return nil
	}
	rowMajor := make([]float64, 9)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			rowMajor[row*3+col] = vals[col*3+row]
		}
	}
	rm, err := spatialmath.NewRotationMatrix(rowMajor)
	if err != nil {
		tr.err = errors.Wrapf(err, "reading %s", what)
		return nil
	}
	return spatialmath.NewPose(r3.Vector{X: vals[9], Y: vals[10], Z: vals[11]}, rm)
}
